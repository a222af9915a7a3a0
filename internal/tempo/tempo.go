// SPDX-License-Identifier: MIT

// Package tempo estimates BPM from an onset envelope by normalised
// autocorrelation, resolving octave errors against a short-lived anchor.
package tempo

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tempokey/internal/analysis"
	"tempokey/internal/config"
	applog "tempokey/internal/log"
)

// Choice tags which octave candidate an estimate came from.
type Choice int

const (
	Raw    Choice = iota // strongest lag
	Half                 // twice the lag, half the tempo
	Double               // half the lag, double the tempo
)

func (c Choice) String() string {
	switch c {
	case Half:
		return "half"
	case Double:
		return "dbl"
	default:
		return "raw"
	}
}

// Estimate is one hop's tempo reading. When Valid is false no tempo was
// resolved and BPM must not be read as a value.
type Estimate struct {
	BPM        float64
	Confidence float64
	Choice     Choice
	Valid      bool
}

// Config holds estimator parameters.
type Config struct {
	MinBPM           float64
	MaxBPM           float64
	MinPeakScore     float64
	OctaveTolerance  float64
	AnchorConfidence float64
	AnchorTTLHops    int
	AnchorSwitchHops int
	MinSeconds       float64
	PriorCenter      float64
	PriorWidth       float64
	EDMFold          bool
}

// ConfigFrom copies the tempo section of the application config.
func ConfigFrom(c config.TempoConfig) Config {
	return Config{
		MinBPM:           c.MinBPM,
		MaxBPM:           c.MaxBPM,
		MinPeakScore:     c.MinPeakScore,
		OctaveTolerance:  c.OctaveTolerance,
		AnchorConfidence: c.AnchorConfidence,
		AnchorTTLHops:    c.AnchorTTLHops,
		AnchorSwitchHops: c.AnchorSwitchHops,
		MinSeconds:       c.MinSeconds,
		PriorCenter:      c.PriorCenter,
		PriorWidth:       c.PriorWidth,
		EDMFold:          c.EDMFold,
	}
}

// candidate is one octave reading of the autocorrelation.
type candidate struct {
	choice Choice
	lag    int
	score  float64
	bpm    float64
}

// Estimator turns envelopes into tempo estimates. Apart from the octave
// anchor it keeps no history, so every estimate reflects only its envelope.
// Not safe for concurrent use.
type Estimator struct {
	cfg Config
	log zerolog.Logger

	anchor    float64 // BPM, 0 when unset
	anchorAge int     // hops since the anchor was last confirmed
	disagree  int     // consecutive confident estimates away from the anchor
}

// NewEstimator creates an estimator with no anchor.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg, log: applog.Component("tempo")}
}

// Reset forgets the octave anchor. Called on soft reset and whenever the
// capture generation changes.
func (e *Estimator) Reset() {
	e.anchor, e.anchorAge, e.disagree = 0, 0, 0
}

// Anchor returns the current octave anchor.
func (e *Estimator) Anchor() (float64, bool) {
	return e.anchor, e.anchor > 0
}

// Estimate computes the tempo of env. Degenerate envelopes (too short,
// silent, no clear periodicity) return an invalid estimate.
func (e *Estimator) Estimate(env analysis.Envelope) Estimate {
	e.ageAnchor()

	est, ok := e.estimate(env)
	if !ok {
		return Estimate{}
	}
	e.updateAnchor(est)
	if e.cfg.EDMFold {
		est.BPM = FoldEDM(est.BPM)
	}
	return est
}

func (e *Estimator) estimate(env analysis.Envelope) (Estimate, bool) {
	if env.Rate <= 0 || env.Seconds() < e.cfg.MinSeconds {
		return Estimate{}, false
	}
	minLag := max(int(math.Round(env.Rate*60/e.cfg.MaxBPM)), 1)
	maxLag := int(math.Round(env.Rate * 60 / e.cfg.MinBPM))
	if len(env.Values) <= maxLag+1 {
		return Estimate{}, false
	}

	x := prepare(env.Values)
	if x == nil {
		return Estimate{}, false
	}

	scores := make([]float64, maxLag+1)
	peak := 0
	for lag := minLag; lag <= maxLag; lag++ {
		scores[lag] = autocorr(x, lag) * e.prior(60*env.Rate/float64(lag))
		if peak == 0 || scores[lag] > scores[peak] {
			peak = lag
		}
	}
	peakScore := scores[peak]
	if !(peakScore >= e.cfg.MinPeakScore) {
		return Estimate{}, false
	}

	lo, hi := max(peak/2, minLag), min(peak*3/2, maxLag)
	baseline := stat.Mean(scores[lo:hi+1], nil)
	conf := clamp01((peakScore - baseline) / peakScore)

	cands := []candidate{{choice: Raw, lag: peak, score: peakScore}}
	for _, c := range []struct {
		choice Choice
		lag    int
	}{{Half, 2 * peak}, {Double, int(math.Round(float64(peak) / 2))}} {
		lag := localMax(scores, c.lag, minLag, maxLag)
		if lag < 0 || scores[lag] < 0.5*peakScore {
			continue
		}
		cands = append(cands, candidate{choice: c.choice, lag: lag, score: scores[lag]})
	}
	for i := range cands {
		cands[i].bpm = 60 * env.Rate / refineLag(x, cands[i].lag)
	}

	chosen := e.choose(cands)
	e.log.Debug().
		Float64("bpm", chosen.bpm).
		Float64("confidence", conf).
		Stringer("choice", chosen.choice).
		Int("candidates", len(cands)).
		Float64("anchor", e.anchor).
		Msg("tempo estimate")

	return Estimate{BPM: chosen.bpm, Confidence: conf, Choice: chosen.choice, Valid: true}, true
}

// choose prefers the candidate closest to the anchor within the tolerance
// band, falling back to the strongest lag.
func (e *Estimator) choose(cands []candidate) candidate {
	best := cands[0]
	if e.anchor <= 0 {
		return best
	}
	bestDist := math.Inf(1)
	for _, c := range cands {
		d := math.Abs(c.bpm-e.anchor) / e.anchor
		if d <= e.cfg.OctaveTolerance && d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func (e *Estimator) ageAnchor() {
	if e.anchor <= 0 {
		return
	}
	e.anchorAge++
	if e.cfg.AnchorTTLHops > 0 && e.anchorAge >= e.cfg.AnchorTTLHops {
		e.log.Debug().Float64("anchor", e.anchor).Msg("anchor expired")
		e.Reset()
	}
}

func (e *Estimator) updateAnchor(est Estimate) {
	if est.Confidence < e.cfg.AnchorConfidence {
		return
	}
	switch {
	case e.anchor <= 0, e.near(est.BPM):
		e.anchor, e.anchorAge, e.disagree = est.BPM, 0, 0
	default:
		e.disagree++
		if e.disagree >= max(e.cfg.AnchorSwitchHops, 1) {
			e.log.Debug().Float64("from", e.anchor).Float64("to", est.BPM).Msg("re-anchoring")
			e.anchor, e.anchorAge, e.disagree = est.BPM, 0, 0
		}
	}
}

func (e *Estimator) near(bpm float64) bool {
	return math.Abs(bpm-e.anchor)/e.anchor <= e.cfg.OctaveTolerance
}

// prior weights lags by a Gaussian preference around the centre tempo.
func (e *Estimator) prior(bpm float64) float64 {
	w := e.cfg.PriorWidth
	if w <= 0 {
		return 1
	}
	d := bpm - e.cfg.PriorCenter
	return 0.6 + 0.4*math.Exp(-d*d/(2*w*w))
}

// FoldEDM moves bpm by octaves into [91, 180].
func FoldEDM(bpm float64) float64 {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return bpm
	}
	for bpm < config.DefaultEDMFoldLow {
		bpm *= 2
	}
	for bpm > config.DefaultEDMFoldHigh {
		bpm /= 2
	}
	return bpm
}

// prepare removes the mean and applies a Hann taper. It returns nil when the
// envelope carries no usable energy.
func prepare(values []float64) []float64 {
	x := make([]float64, len(values))
	copy(x, values)
	mean := stat.Mean(x, nil)
	floats.AddConst(-mean, x)
	n := float64(len(x) - 1)
	for i := range x {
		x[i] *= 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/n))
	}
	energy := floats.Dot(x, x)
	if !(energy > 1e-18) || math.IsInf(energy, 0) {
		return nil
	}
	return x
}

// autocorr returns the normalised correlation of x with itself shifted by
// lag, clamped to [0, 1].
func autocorr(x []float64, lag int) float64 {
	if lag <= 0 || lag >= len(x) {
		return 0
	}
	a, b := x[:len(x)-lag], x[lag:]
	den := math.Sqrt(floats.Dot(a, a) * floats.Dot(b, b))
	if den < 1e-12 {
		return 0
	}
	return clamp01(floats.Dot(a, b) / den)
}

// localMax returns the best-scoring lag within one step of lag, or -1 when
// lag falls outside the searched range.
func localMax(scores []float64, lag, minLag, maxLag int) int {
	if lag < minLag || lag > maxLag {
		return -1
	}
	best := lag
	for _, l := range []int{lag - 1, lag + 1} {
		if l >= minLag && l <= maxLag && scores[l] > scores[best] {
			best = l
		}
	}
	return best
}

// refineLag fits a parabola through the correlation around lag.
func refineLag(x []float64, lag int) float64 {
	if lag <= 1 || lag+1 >= len(x) {
		return float64(lag)
	}
	rm, r0, rp := autocorr(x, lag-1), autocorr(x, lag), autocorr(x, lag+1)
	den := rm - 2*r0 + rp
	if math.Abs(den) < 1e-6 {
		return float64(lag)
	}
	d := math.Max(math.Min(0.5*(rm-rp)/den, 0.5), -0.5)
	return float64(lag) + d
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
