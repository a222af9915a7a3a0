// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"tempokey/internal/audio"
)

// Envelope is an onset-strength curve sampled at Rate.
type Envelope struct {
	Values []float64
	Rate   float64
}

// Seconds returns the envelope duration.
func (e Envelope) Seconds() float64 {
	if e.Rate <= 0 {
		return 0
	}
	return float64(len(e.Values)) / e.Rate
}

// Envelope emphasises the kick band, keeps the rising edges and reduces
// them to the envelope rate. Silence before the first and after the last
// onset is trimmed, so Seconds reflects non-silent content only. A window
// with no energy or with NaN samples yields an empty envelope.
func (x *Extractor) Envelope(w audio.Window) Envelope {
	rate := float64(w.SampleRate)
	if rate <= 0 || len(w.Samples) == 0 {
		return Envelope{Rate: x.cfg.EnvelopeRate}
	}
	decim := max(int(math.Round(rate/x.cfg.EnvelopeRate)), 1)
	env := Envelope{Rate: rate / float64(decim)}

	hpA := math.Exp(-2 * math.Pi * kickLowHz / rate)
	lpA := math.Exp(-2 * math.Pi * kickHighHz / rate)

	values := make([]float64, 0, len(w.Samples)/decim)
	var hpLP, lp, prev, acc float64
	cnt := 0
	for _, s := range w.Samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return env
		}
		// One-pole high-pass as input minus its low-passed self.
		hpLP = hpA*hpLP + (1-hpA)*v
		lp = lpA*lp + (1-lpA)*(v-hpLP)

		acc += math.Max(lp-prev, 0)
		prev = lp
		cnt++
		if cnt == decim {
			m := acc / float64(cnt)
			if n := len(values); n > 0 {
				m = values[n-1]*0.8 + m*0.2
			}
			values = append(values, m)
			acc, cnt = 0, 0
		}
	}

	env.Values = trimQuiet(values, 0.03)
	return env
}

// trimQuiet drops leading and trailing values below frac of the peak.
func trimQuiet(values []float64, frac float64) []float64 {
	var peak float64
	for _, v := range values {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak <= 1e-12 {
		return nil
	}
	thr := frac * peak
	i0, i1 := 0, len(values)-1
	for i0 < len(values) && math.Abs(values[i0]) < thr {
		i0++
	}
	for i1 > i0 && math.Abs(values[i1]) < thr {
		i1--
	}
	if i1 <= i0 {
		return nil
	}
	return values[i0 : i1+1]
}
