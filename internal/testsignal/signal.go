// SPDX-License-Identifier: MIT

// Package testsignal synthesizes deterministic mono test material (kick loops,
// chords, noise percussion) and small helpers shared by package tests.
package testsignal

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Rate is the internal analysis sample rate.
const Rate = 48000

// Silence returns seconds of digital silence.
func Silence(seconds float64, rate int) []float32 {
	return make([]float32, int(seconds*float64(rate)))
}

// Sine returns a sine of the given frequency and amplitude.
func Sine(seconds float64, rate int, freq, amp float64) []float32 {
	out := make([]float32, int(seconds*float64(rate)))
	for i := range out {
		t := float64(i) / float64(rate)
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

// Chord sums sustained sines at the given frequencies, each at amp.
func Chord(seconds float64, rate int, amp float64, freqs ...float64) []float32 {
	out := make([]float32, int(seconds*float64(rate)))
	for _, f := range freqs {
		for i := range out {
			t := float64(i) / float64(rate)
			out[i] += float32(amp * math.Sin(2*math.Pi*f*t))
		}
	}
	return out
}

// Kick renders one synthetic kick drum: a pitch sweep from 120 Hz down to
// 50 Hz under an exponential decay.
func Kick(rate int) []float32 {
	n := int(0.25 * float64(rate))
	out := make([]float32, n)
	phase := 0.0
	for i := range out {
		t := float64(i) / float64(rate)
		freq := 50 + 70*math.Exp(-t/0.03)
		phase += 2 * math.Pi * freq / float64(rate)
		out[i] = float32(0.9 * math.Exp(-t/0.12) * math.Sin(phase))
	}
	return out
}

// HouseLoop renders a four-on-the-floor loop: kicks on every beat and short
// noise hats on the off-beats.
func HouseLoop(bpm, seconds float64, rate int, seed uint64) []float32 {
	out := make([]float32, int(seconds*float64(rate)))
	kick := Kick(rate)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	beat := 60.0 / bpm * float64(rate)
	hatLen := int(0.02 * float64(rate))
	for b := 0; ; b++ {
		start := int(math.Round(float64(b) * beat))
		if start >= len(out) {
			break
		}
		mix(out, kick, start)
		off := int(math.Round((float64(b) + 0.5) * beat))
		for i := 0; i < hatLen && off+i < len(out); i++ {
			env := math.Exp(-float64(i) / float64(hatLen) * 4)
			out[off+i] += float32(0.12 * env * (rng.Float64()*2 - 1))
		}
	}
	return out
}

// NoisePercussion renders an unpitched loop of white-noise hits: hats every
// eighth and longer snare bursts on beats 2 and 4.
func NoisePercussion(bpm, seconds float64, rate int, seed uint64) []float32 {
	out := make([]float32, int(seconds*float64(rate)))
	rng := rand.New(rand.NewPCG(seed, seed+1))
	eighth := 30.0 / bpm * float64(rate)
	for e := 0; ; e++ {
		start := int(math.Round(float64(e) * eighth))
		if start >= len(out) {
			break
		}
		length, amp := int(0.03*float64(rate)), 0.2
		if e%4 == 2 {
			length, amp = int(0.09*float64(rate)), 0.4
		}
		for i := 0; i < length && start+i < len(out); i++ {
			env := math.Exp(-float64(i) / float64(length) * 3)
			out[start+i] += float32(amp * env * (rng.Float64()*2 - 1))
		}
	}
	return out
}

// Concat joins signals end to end.
func Concat(parts ...[]float32) []float32 {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float32, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Mix adds b into a in place, truncating b at the end of a.
func Mix(a, b []float32) []float32 {
	mix(a, b, 0)
	return a
}

func mix(dst, src []float32, at int) {
	for i, v := range src {
		if at+i >= len(dst) {
			return
		}
		dst[at+i] += v
	}
}

// Interleave duplicates a mono signal into n identical channels.
func Interleave(mono []float32, channels int) []float32 {
	out := make([]float32, len(mono)*channels)
	for i, v := range mono {
		for c := range channels {
			out[i*channels+c] = v
		}
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}

// RecordingTransport stores every message it is sent, for inspection in tests.
type RecordingTransport struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
}

// Send records data.
func (r *RecordingTransport) Send(data any) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, data)
	r.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (r *RecordingTransport) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *RecordingTransport) Messages() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.msgs...)
}

// Closed reports whether Close was called.
func (r *RecordingTransport) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
