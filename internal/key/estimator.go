// SPDX-License-Identifier: MIT
package key

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tempokey/internal/analysis"
	"tempokey/internal/audio"
	"tempokey/internal/config"
	applog "tempokey/internal/log"
)

// Profile names a template family.
type Profile int

const (
	ProfileEDM Profile = iota
	ProfileKrumhansl
)

func (p Profile) String() string {
	if p == ProfileKrumhansl {
		return "krumhansl"
	}
	return "edm"
}

// ParseProfile accepts "edm" or "krumhansl".
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "", "edm":
		return ProfileEDM, nil
	case "krumhansl":
		return ProfileKrumhansl, nil
	}
	return ProfileEDM, fmt.Errorf("invalid key profile %q", s)
}

const (
	bassTonicBonus = 0.12
	modeThirdBonus = 0.06
)

// Estimate is one hop's key reading. Valid false means the window was too
// short or silent. Atonal means there was signal but no key to report.
type Estimate struct {
	Key        Key
	Confidence float64
	Valid      bool
	Atonal     bool

	Score     float64 // best template score
	RunnerUp  Key
	Margin    float64 // best minus runner-up score
	Tonalness float64
}

// Config holds estimator parameters.
type Config struct {
	Profile     Profile
	TonalMin    float64
	EnergyFloor float64
	MarginFloor float64
	MinSeconds  float64
}

// ConfigFrom copies the key section of the application config.
func ConfigFrom(c config.KeyConfig) (Config, error) {
	p, err := ParseProfile(c.Profile)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Profile:     p,
		TonalMin:    c.TonalMin,
		EnergyFloor: c.EnergyFloor,
		MarginFloor: c.MarginFloor,
		MinSeconds:  c.MinSeconds,
	}, nil
}

type templates struct {
	major, minor, harmonic [12]float64
}

func buildTemplates(p Profile) templates {
	var t templates
	switch p {
	case ProfileKrumhansl:
		t.major = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
		t.minor = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
		t.harmonic = t.minor
		t.harmonic[10] *= 0.55
		t.harmonic[11] *= 1.35
	default:
		t.major = [12]float64{1, .15, .55, .15, .85, .60, .15, .90, .15, .50, .15, .45}
		t.minor = [12]float64{1, .15, .50, .85, .25, .55, .15, .90, .65, .15, .65, .30}
		t.harmonic = [12]float64{1, .15, .50, .85, .25, .55, .15, .90, .65, .15, .20, .70}
	}
	for _, v := range []*[12]float64{&t.major, &t.minor, &t.harmonic} {
		if n := floats.Norm(v[:], 2); n > 1e-9 {
			floats.Scale(1/n, v[:])
		}
	}
	return t
}

// Estimator matches tone profiles against the 24 key templates. It keeps no
// history between calls. Not safe for concurrent use.
type Estimator struct {
	cfg  Config
	tone analysis.ToneExtractor
	tmpl templates
	log  zerolog.Logger

	rotated [12]float64
}

// NewEstimator creates an estimator that reads profiles from tone.
func NewEstimator(cfg Config, tone analysis.ToneExtractor) *Estimator {
	return &Estimator{
		cfg:  cfg,
		tone: tone,
		tmpl: buildTemplates(cfg.Profile),
		log:  applog.Component("key"),
	}
}

// Estimate profiles w and matches the result.
func (e *Estimator) Estimate(w audio.Window) Estimate {
	if w.Seconds() < e.cfg.MinSeconds {
		return Estimate{}
	}
	return e.Match(e.tone.ToneProfile(w))
}

// Match scores p against every template.
func (e *Estimator) Match(p analysis.ToneProfile) Estimate {
	if p.Empty() || math.IsNaN(p.Energy) {
		return Estimate{}
	}
	if p.Energy < e.cfg.EnergyFloor || p.Tonalness < e.cfg.TonalMin {
		return Estimate{Valid: true, Atonal: true, Tonalness: p.Tonalness}
	}

	hintTonic, hintStrength := bassHint(p.Bass)
	best, second := scored{score: math.Inf(-1)}, scored{score: math.Inf(-1)}
	for tonic := range 12 {
		bonus := 0.0
		if tonic == hintTonic {
			bonus = bassTonicBonus * hintStrength
		}
		majBias, minBias := modeThirdBias(&p.Chroma, tonic)

		maj := e.corr(&p.Chroma, &e.tmpl.major, tonic) + bonus + majBias
		consider(scored{Key{tonic, Major}, maj}, &best, &second)

		nat := e.corr(&p.Chroma, &e.tmpl.minor, tonic)
		harm := e.corr(&p.Chroma, &e.tmpl.harmonic, tonic)
		consider(scored{Key{tonic, Minor}, math.Max(nat, harm) + bonus + minBias}, &best, &second)
	}

	margin := math.Max(best.score-second.score, 0)
	est := Estimate{
		Key:       best.key,
		RunnerUp:  second.key,
		Score:     best.score,
		Margin:    margin,
		Tonalness: p.Tonalness,
		Valid:     true,
	}
	if margin < e.cfg.MarginFloor {
		est.Atonal = true
		return est
	}
	est.Confidence = clamp01(0.65*clamp01(margin/0.15) + 0.35*clamp01(best.score/0.70))

	e.log.Debug().
		Stringer("key", best.key).
		Stringer("runner_up", second.key).
		Float64("score", best.score).
		Float64("margin", margin).
		Float64("confidence", est.Confidence).
		Float64("tonalness", p.Tonalness).
		Msg("key estimate")
	return est
}

type scored struct {
	key   Key
	score float64
}

func consider(c scored, best, second *scored) {
	switch {
	case c.score > best.score:
		*second, *best = *best, c
	case c.score > second.score:
		*second = c
	}
}

// corr is the Pearson correlation of chroma with tmpl rotated to tonic.
func (e *Estimator) corr(chroma, tmpl *[12]float64, tonic int) float64 {
	for pc := range 12 {
		e.rotated[pc] = tmpl[mod12(pc-tonic)]
	}
	r := stat.Correlation(chroma[:], e.rotated[:], nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// bassHint returns the strongest bass pitch class and how clearly it stands
// out from a flat distribution.
func bassHint(bass [12]float64) (int, float64) {
	tonic := floats.MaxIdx(bass[:])
	return tonic, clamp01((bass[tonic] - 0.12) / 0.23)
}

// modeThirdBias favours the mode whose third is louder above tonic.
func modeThirdBias(chroma *[12]float64, tonic int) (major, minor float64) {
	m3 := finite(chroma[mod12(tonic+3)])
	maj3 := finite(chroma[mod12(tonic+4)])
	sum := m3 + maj3
	if sum <= 1e-6 {
		return 0, 0
	}
	diff := (maj3 - m3) / sum
	return math.Max(diff, 0) * modeThirdBonus, math.Max(-diff, 0) * modeThirdBonus
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
