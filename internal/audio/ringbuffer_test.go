// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"testing"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func TestRingBufferSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		writes   []int
		request  int
		wantLen  int
		wantHead float32
	}{
		{"empty", 8, nil, 4, 0, 0},
		{"partial fill", 8, []int{3}, 8, 3, 0},
		{"newest only", 8, []int{6}, 4, 4, 2},
		{"wrapped", 8, []int{5, 6}, 8, 8, 3},
		{"oversized block", 4, []int{10}, 8, 4, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRingBuffer(tt.capacity, 48000, 1)
			next := 0
			for _, n := range tt.writes {
				r.Write(seq(next, n))
				next += n
			}
			w := r.Snapshot(tt.request)
			if len(w.Samples) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(w.Samples), tt.wantLen)
			}
			if tt.wantLen > 0 && w.Samples[0] != tt.wantHead {
				t.Errorf("head = %v, want %v", w.Samples[0], tt.wantHead)
			}
			for i := 1; i < len(w.Samples); i++ {
				if w.Samples[i] != w.Samples[i-1]+1 {
					t.Fatalf("samples out of order at %d: %v", i, w.Samples)
				}
			}
			if w.End != uint64(next) {
				t.Errorf("End = %d, want %d", w.End, next)
			}
			if w.Generation != 1 || w.SampleRate != 48000 {
				t.Errorf("window metadata = %d/%d", w.Generation, w.SampleRate)
			}
		})
	}
}

func TestRingBufferSnapshotIsCopy(t *testing.T) {
	r := NewRingBuffer(8, 48000, 1)
	r.Write(seq(0, 4))
	w := r.Snapshot(4)
	r.Write(seq(100, 8))
	if w.Samples[0] != 0 || w.Samples[3] != 3 {
		t.Errorf("snapshot aliased the ring: %v", w.Samples)
	}
}

func TestRingBufferDiscard(t *testing.T) {
	r := NewRingBuffer(16, 48000, 1)
	r.Write(seq(0, 10))
	r.Discard()
	if got := len(r.Snapshot(16).Samples); got != 0 {
		t.Fatalf("after Discard snapshot len = %d, want 0", got)
	}
	r.Write(seq(50, 3))
	w := r.Snapshot(16)
	if len(w.Samples) != 3 || w.Samples[0] != 50 {
		t.Errorf("post-discard snapshot = %v", w.Samples)
	}
}

func TestRingBufferLatest(t *testing.T) {
	r := NewRingBuffer(8, 48000, 1)
	r.Write(seq(1, 3))
	dst := make([]float32, 5)
	if n := r.Latest(dst); n != 3 {
		t.Fatalf("Latest = %d, want 3", n)
	}
	want := []float32{0, 0, 1, 2, 3}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("Latest dst = %v, want %v", dst, want)
		}
	}
}

func TestRingBufferWriteZeroAllocs(t *testing.T) {
	r := NewRingBuffer(4096, 48000, 1)
	block := seq(0, 480)
	r.Write(block)
	allocs := testing.AllocsPerRun(100, func() {
		r.Write(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Write hot path, got %.1f", allocs)
	}
}

// A reader racing the producer must only ever see in-order runs of one
// monotonic sequence.
func TestRingBufferConcurrentReadWrite(t *testing.T) {
	r := NewRingBuffer(1024, 48000, 1)
	const blocks = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := 0
		for range blocks {
			r.Write(seq(next, 64))
			next += 64
		}
	}()

	for range 500 {
		w := r.Snapshot(1024)
		for i := 1; i < len(w.Samples); i++ {
			if w.Samples[i] != w.Samples[i-1]+1 {
				t.Fatalf("torn snapshot at %d: %v then %v", i, w.Samples[i-1], w.Samples[i])
			}
		}
		if len(w.Samples) > 0 && w.Samples[len(w.Samples)-1] != float32(w.End-1) {
			t.Fatalf("End %d does not match last sample %v", w.End, w.Samples[len(w.Samples)-1])
		}
	}
	wg.Wait()
}
