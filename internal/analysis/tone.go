// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"tempokey/internal/audio"
)

const eps = 1e-12

// ToneProfile is the pitch-class summary of one analysis window.
type ToneProfile struct {
	Chroma [12]float64 // full-band chroma with the bass chroma mixed in, L1-normalised
	Bass   [12]float64 // chroma of bins at or below the bass limit, L1-normalised

	Energy        float64 // RMS level of the window
	Flatness      float64 // spectral flatness of the harmonic spectrum, 0 tonal .. 1 noise
	HarmonicRatio float64 // share of magnitude kept by the harmonic mask
	Peakiness     float64 // how concentrated Chroma is on a few pitch classes
	Tonalness     float64 // combined tonality score in [0, 1]
	Frames        int     // STFT frames analysed
}

// Empty reports whether the profile carries no pitch information.
func (p ToneProfile) Empty() bool {
	return p.Frames == 0 || floats.Sum(p.Chroma[:]) <= eps
}

// ToneProfile runs an STFT over the window, separates the harmonic part with
// median-filter HPSS and folds it into 12 pitch classes. Loud frames weigh
// more than quiet ones in every aggregate.
func (x *Extractor) ToneProfile(w audio.Window) ToneProfile {
	var prof ToneProfile
	prof.Energy = RMS(w.Samples)
	if !(prof.Energy > 1e-9) || math.IsInf(prof.Energy, 0) {
		prof.Energy = 0
		return prof
	}

	n, hop := x.cfg.FFTSize, x.cfg.HopSize
	if len(w.Samples) < n {
		return prof
	}

	for _, row := range x.hpssRing {
		clear(row)
	}
	ringPos, ringLen := 0, 0
	radius := x.cfg.HPSSFreqBins / 2

	var full, bass [12]float64
	var sumTotal, sumHarm, flatAcc float64

	for start := 0; start+n <= len(w.Samples); start += hop {
		spec := x.proc.Magnitudes(w.Samples[start : start+n])
		for i, b := range x.bins {
			x.mags[i] = spec[b.k]
		}

		copy(x.hpssRing[ringPos], x.mags)
		ringPos = (ringPos + 1) % len(x.hpssRing)
		ringLen = min(ringLen+1, len(x.hpssRing))

		for i := range x.mags {
			x.scratch = x.scratch[:0]
			for t := range ringLen {
				x.scratch = append(x.scratch, x.hpssRing[t][i])
			}
			x.hMed[i] = median(x.scratch)
		}
		for i := range x.mags {
			lo, hi := max(i-radius, 0), min(i+radius+1, len(x.mags))
			x.scratch = append(x.scratch[:0], x.mags[lo:hi]...)
			x.pMed[i] = median(x.scratch)
		}

		var frameTotal, frameHarm, frameLog float64
		for i, b := range x.bins {
			s := x.mags[i]
			h2, p2 := x.hMed[i]*x.hMed[i], x.pMed[i]*x.pMed[i]
			var mask float64
			if h2+p2 > 0 {
				mask = h2 / (h2 + p2 + eps)
			}
			mh := mask * s
			frameTotal += s
			frameHarm += mh
			frameLog += math.Log(mh + eps)

			m0, m1 := mh*b.w0*b.weight, mh*b.w1*b.weight
			full[b.pc0] += m0
			full[b.pc1] += m1
			if b.bass {
				bass[b.pc0] += m0
				bass[b.pc1] += m1
			}
		}

		if frameTotal > eps {
			cnt := float64(len(x.bins))
			am := math.Max(frameHarm/cnt, eps)
			gm := math.Exp(frameLog / cnt)
			flatAcc += clamp01(gm/am) * frameTotal
		}
		sumTotal += frameTotal
		sumHarm += frameHarm
		prof.Frames++
	}

	if sumTotal <= eps {
		return prof
	}
	normalizeL1(full[:])
	normalizeL1(bass[:])
	prof.Bass = bass
	mix := clamp01(x.cfg.BassMix)
	if floats.Sum(bass[:]) == 0 {
		mix = 0
	}
	for i := range prof.Chroma {
		prof.Chroma[i] = full[i]*(1-mix) + bass[i]*mix
	}
	normalizeL1(prof.Chroma[:])

	prof.Flatness = clamp01(flatAcc / sumTotal)
	prof.HarmonicRatio = clamp01(sumHarm / sumTotal)

	p1, p2 := topTwo(prof.Chroma[:])
	prof.Peakiness = clamp01(0.7*clamp01((p1-0.18)/0.18) + 0.3*clamp01((p2-0.10)/0.12))
	prof.Tonalness = clamp01(0.25*(1-prof.Flatness) +
		0.5*prof.Peakiness +
		0.25*clamp01((prof.HarmonicRatio-0.35)/0.25))
	return prof
}

// median sorts values in place and returns their median.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return 0.5 * (values[n/2-1] + values[n/2])
}

func normalizeL1(v []float64) {
	sum := floats.Sum(v)
	if sum <= 1e-9 {
		clear(v)
		return
	}
	floats.Scale(1/sum, v)
}

func topTwo(v []float64) (best, second float64) {
	for _, x := range v {
		if x > best {
			best, second = x, best
		} else if x > second {
			second = x
		}
	}
	return best, second
}
