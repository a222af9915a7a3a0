// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
	"time"
)

// Window is an immutable copy of the newest samples of one ring generation.
type Window struct {
	Samples    []float32
	SampleRate int
	Generation uint64
	End        uint64 // absolute index one past the newest sample
	Timestamp  time.Time
}

// Seconds returns the window duration.
func (w Window) Seconds() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// RingBuffer is a fixed-capacity single-producer single-consumer sample store.
// The producer never blocks or locks; on overflow the oldest samples are
// overwritten. Slots are atomics so readers racing the producer stay within
// the memory model, and a read lapped by the producer is trimmed to the
// samples that were still intact.
type RingBuffer struct {
	slots      []atomic.Uint32
	capacity   uint64
	written    atomic.Uint64 // samples published
	reserved   atomic.Uint64 // samples published plus the block being written
	floor      atomic.Uint64 // samples before this index were discarded
	generation uint64
	sampleRate int
}

// NewRingBuffer allocates a ring holding capacity samples.
func NewRingBuffer(capacity, sampleRate int, generation uint64) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		slots:      make([]atomic.Uint32, capacity),
		capacity:   uint64(capacity),
		generation: generation,
		sampleRate: sampleRate,
	}
}

// Generation identifies the device session this ring belongs to.
func (r *RingBuffer) Generation() uint64 { return r.generation }

// SampleRate returns the rate of the stored samples.
func (r *RingBuffer) SampleRate() int { return r.sampleRate }

// Capacity returns the ring size in samples.
func (r *RingBuffer) Capacity() int { return int(r.capacity) }

// Written returns the total number of samples ever written.
func (r *RingBuffer) Written() uint64 { return r.written.Load() }

// Write appends samples. Real-time safe: no locks, no allocation.
func (r *RingBuffer) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	w := r.written.Load()
	if uint64(len(samples)) > r.capacity {
		skip := uint64(len(samples)) - r.capacity
		samples = samples[skip:]
		w += skip
	}
	end := w + uint64(len(samples))
	r.reserved.Store(end)
	for i, s := range samples {
		r.slots[(w+uint64(i))%r.capacity].Store(math.Float32bits(s))
	}
	r.written.Store(end)
}

// Discard drops everything written so far. Subsequent snapshots only see
// samples written after the call.
func (r *RingBuffer) Discard() {
	r.floor.Store(r.written.Load())
}

// Snapshot copies out at most n of the newest samples.
func (r *RingBuffer) Snapshot(n int) Window {
	end := r.written.Load()
	start := r.oldest(end, n)

	out := make([]float32, end-start)
	for i := range out {
		out[i] = math.Float32frombits(r.slots[(start+uint64(i))%r.capacity].Load())
	}
	out, start = r.trimLapped(out, start)

	return Window{
		Samples:    out,
		SampleRate: r.sampleRate,
		Generation: r.generation,
		End:        start + uint64(len(out)),
		Timestamp:  time.Now(),
	}
}

// Latest fills dst with the newest samples and returns how many were valid.
// Unlike Snapshot it does not allocate; valid samples are right-aligned.
func (r *RingBuffer) Latest(dst []float32) int {
	end := r.written.Load()
	start := r.oldest(end, len(dst))
	count := int(end - start)
	off := len(dst) - count
	for i := range off {
		dst[i] = 0
	}
	for i := range count {
		dst[off+i] = math.Float32frombits(r.slots[(start+uint64(i))%r.capacity].Load())
	}
	valid, _ := r.trimLapped(dst[off:], start)
	lost := count - len(valid)
	for i := range lost {
		dst[off+i] = 0
	}
	return len(valid)
}

func (r *RingBuffer) oldest(end uint64, n int) uint64 {
	start := uint64(0)
	if end > r.capacity {
		start = end - r.capacity
	}
	if n >= 0 && end > uint64(n) && end-uint64(n) > start {
		start = end - uint64(n)
	}
	if f := r.floor.Load(); f > start {
		start = min(f, end)
	}
	return start
}

// trimLapped drops the prefix of a copy that the producer may have
// overwritten while it was being read.
func (r *RingBuffer) trimLapped(out []float32, start uint64) ([]float32, uint64) {
	res := r.reserved.Load()
	if res <= r.capacity {
		return out, start
	}
	safe := res - r.capacity
	if start >= safe {
		return out, start
	}
	drop := safe - start
	if drop >= uint64(len(out)) {
		return out[:0], start + uint64(len(out))
	}
	return out[drop:], safe
}
