// SPDX-License-Identifier: MIT
package audio

import (
	goaudio "github.com/go-audio/audio"
)

// Normalizer turns interleaved device blocks of any channel count and rate
// into mono samples at the target rate and writes them to the current ring.
// Scratch space is reused, so the steady state does not allocate.
type Normalizer struct {
	target int
	ring   func() *RingBuffer

	mono []float32
	out  []float32

	// Streaming linear resampler state. pos indexes the virtual sequence
	// [prev, x0, x1, ...] of the block being processed.
	inRate int
	step   float64
	pos    float64
	prev   float32
}

// NewNormalizer creates a normalizer writing into whatever ring the
// resolver returns at callback time.
func NewNormalizer(targetRate int, ring func() *RingBuffer) *Normalizer {
	return &Normalizer{target: targetRate, ring: ring}
}

// Process consumes one device block. It is called from the capture callback.
func (n *Normalizer) Process(buf *goaudio.Float32Buffer) {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return
	}
	ch := max(buf.Format.NumChannels, 1)
	frames := len(buf.Data) / ch

	if cap(n.mono) < frames {
		n.mono = make([]float32, frames)
	}
	mono := n.mono[:frames]
	downmix(mono, buf.Data, ch)

	r := n.ring()
	if r == nil {
		return
	}
	if buf.Format.SampleRate <= 0 || buf.Format.SampleRate == n.target {
		r.Write(mono)
		return
	}
	r.Write(n.resample(mono, buf.Format.SampleRate))
}

func downmix(dst, src []float32, channels int) {
	if channels == 1 {
		copy(dst, src)
		return
	}
	scale := 1 / float32(channels)
	for i := range dst {
		var sum float32
		base := i * channels
		for c := range channels {
			sum += src[base+c]
		}
		dst[i] = sum * scale
	}
}

func (n *Normalizer) resample(x []float32, inRate int) []float32 {
	if inRate != n.inRate {
		n.inRate = inRate
		n.step = float64(inRate) / float64(n.target)
		n.pos = 1 // first output lands on the first real sample
		n.prev = 0
	}

	need := int(float64(len(x))/n.step) + 2
	if cap(n.out) < need {
		n.out = make([]float32, need)
	}
	out := n.out[:0]

	at := func(k int) float32 {
		if k == 0 {
			return n.prev
		}
		return x[k-1]
	}
	for {
		i := int(n.pos)
		if i+1 > len(x) {
			break
		}
		frac := float32(n.pos - float64(i))
		out = append(out, at(i)*(1-frac)+at(i+1)*frac)
		n.pos += n.step
	}
	n.pos -= float64(len(x))
	n.prev = x[len(x)-1]
	return out
}
