// SPDX-License-Identifier: MIT

// Package analysis turns analysis windows into the features the estimators
// consume: a kick-emphasised onset envelope for tempo and an HPSS-filtered
// chroma profile for key.
package analysis

import (
	"fmt"
	"math"

	"tempokey/internal/config"
	"tempokey/internal/fft"
)

// Kick-band emphasis corners of the onset envelope.
const (
	kickLowHz  = 40.0
	kickHighHz = 180.0
)

// Config holds the extraction parameters.
type Config struct {
	SampleRate   int
	EnvelopeRate float64

	FFTSize   int
	HopSize   int
	Window    fft.WindowFunc
	MinHz     float64
	MaxHz     float64
	BassMaxHz float64
	BassMix   float64

	HPSSTimeFrames int // odd
	HPSSFreqBins   int // odd
}

// ConfigFrom derives extraction parameters from the application config.
func ConfigFrom(c *config.Config) (Config, error) {
	win, err := fft.ParseWindowFunc(c.Key.Window)
	if err != nil {
		return Config{}, err
	}
	return Config{
		SampleRate:     c.Capture.SampleRate,
		EnvelopeRate:   c.Tempo.EnvelopeRate,
		FFTSize:        c.Key.FFTSize,
		HopSize:        c.Key.HopSize,
		Window:         win,
		MinHz:          c.Key.MinHz,
		MaxHz:          c.Key.MaxHz,
		BassMaxHz:      c.Key.BassMaxHz,
		BassMix:        c.Key.BassMix,
		HPSSTimeFrames: 9,
		HPSSFreqBins:   17,
	}, nil
}

// DefaultConfig returns the built-in extraction parameters at 48 kHz.
func DefaultConfig() Config {
	cfg := config.Defaults()
	c, _ := ConfigFrom(&cfg)
	return c
}

// binContrib maps one FFT bin onto its two nearest pitch classes.
type binContrib struct {
	k        int
	pc0, pc1 int
	w0, w1   float64
	weight   float64 // low-frequency emphasis
	bass     bool
}

// Extractor computes envelopes and tone profiles. Results depend only on the
// window passed in, but the Extractor owns FFT scratch space, so it is not
// safe for concurrent use: give each estimator its own.
type Extractor struct {
	cfg  Config
	proc *fft.Processor
	bins []binContrib

	// per-window scratch, sized once
	mags     []float64
	hpssRing [][]float64
	hMed     []float64
	pMed     []float64
	scratch  []float64
}

// NewExtractor validates cfg and pre-computes the bin-to-pitch-class map.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.EnvelopeRate <= 0 || cfg.EnvelopeRate > float64(cfg.SampleRate) {
		return nil, fmt.Errorf("envelope rate %.1f out of range", cfg.EnvelopeRate)
	}
	if cfg.HopSize <= 0 || cfg.HopSize > cfg.FFTSize {
		return nil, fmt.Errorf("hop size %d must be in (0, %d]", cfg.HopSize, cfg.FFTSize)
	}
	proc, err := fft.NewProcessor(cfg.FFTSize, float64(cfg.SampleRate), cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("tone analysis: %w", err)
	}
	cfg.HPSSTimeFrames = max(cfg.HPSSTimeFrames, 1) | 1
	cfg.HPSSFreqBins = max(cfg.HPSSFreqBins, 1) | 1

	x := &Extractor{
		cfg:  cfg,
		proc: proc,
		bins: pitchClassMap(cfg.SampleRate, cfg.FFTSize, cfg.MinHz, cfg.MaxHz, cfg.BassMaxHz),
	}
	if len(x.bins) == 0 {
		return nil, fmt.Errorf("no FFT bins between %.0f and %.0f Hz", cfg.MinHz, cfg.MaxHz)
	}
	n := len(x.bins)
	x.mags = make([]float64, n)
	x.hMed = make([]float64, n)
	x.pMed = make([]float64, n)
	x.hpssRing = make([][]float64, cfg.HPSSTimeFrames)
	for i := range x.hpssRing {
		x.hpssRing[i] = make([]float64, n)
	}
	x.scratch = make([]float64, 0, max(cfg.HPSSTimeFrames, cfg.HPSSFreqBins))
	return x, nil
}

// Config returns the extraction parameters in use.
func (x *Extractor) Config() Config { return x.cfg }

func pitchClassMap(sampleRate, n int, minHz, maxHz, bassMaxHz float64) []binContrib {
	sr := float64(sampleRate)
	half := n / 2
	kMin := clampInt(int(math.Ceil(math.Max(minHz, 1)*float64(n)/sr)), 1, half)
	kMax := clampInt(int(math.Floor(math.Min(math.Max(maxHz, minHz), sr*0.49)*float64(n)/sr)), 1, half)

	out := make([]binContrib, 0, max(kMax-kMin+1, 0))
	for k := kMin; k <= kMax; k++ {
		f := float64(k) * sr / float64(n)
		semitone := 69 + 12*math.Log2(f/440)
		s0 := math.Floor(semitone)
		frac := semitone - s0
		i0 := int(s0)
		out = append(out, binContrib{
			k:      k,
			pc0:    mod12(i0),
			pc1:    mod12(i0 + 1),
			w0:     1 - frac,
			w1:     frac,
			weight: clamp01(math.Sqrt(math.Max(minHz, 1) / f)),
			bass:   f <= bassMaxHz,
		})
	}
	return out
}

func mod12(i int) int { return ((i % 12) + 12) % 12 }

func clampInt(v, lo, hi int) int { return min(max(v, lo), hi) }

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
