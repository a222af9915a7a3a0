// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"testing"

	goaudio "github.com/go-audio/audio"
)

func block(channels, rate int, data []float32) *goaudio.Float32Buffer {
	return &goaudio.Float32Buffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:   data,
	}
}

func TestNormalizerDownmix(t *testing.T) {
	r := NewRingBuffer(64, 48000, 1)
	n := NewNormalizer(48000, func() *RingBuffer { return r })

	n.Process(block(2, 48000, []float32{1, 0, 0.5, 0.5, -1, 1}))

	w := r.Snapshot(64)
	want := []float32{0.5, 0.5, 0}
	if len(w.Samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(w.Samples), len(want))
	}
	for i := range want {
		if w.Samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, w.Samples[i], want[i])
		}
	}
}

func TestNormalizerResampleRate(t *testing.T) {
	tests := []struct {
		name   string
		inRate int
	}{
		{"44.1k", 44100},
		{"96k", 96000},
		{"22.05k", 22050},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRingBuffer(4*48000, 48000, 1)
			n := NewNormalizer(48000, func() *RingBuffer { return r })

			// One second of a 440 Hz sine in 10 ms blocks. Block bounds are
			// rounded so the lengths add up to exactly inRate samples.
			for b := range 100 {
				start, end := b*tt.inRate/100, (b+1)*tt.inRate/100
				data := make([]float32, end-start)
				for i := range data {
					tm := float64(start+i) / float64(tt.inRate)
					data[i] = float32(math.Sin(2 * math.Pi * 440 * tm))
				}
				n.Process(block(1, tt.inRate, data))
			}

			got := int(r.Written())
			if math.Abs(float64(got-48000)) > 3 {
				t.Fatalf("wrote %d samples for one second, want ~48000", got)
			}

			// The resampled signal must still be a 440 Hz sine at 48 kHz.
			w := r.Snapshot(48000)
			var maxErr float64
			for i := 100; i < len(w.Samples)-100; i++ {
				want := math.Sin(2 * math.Pi * 440 * float64(i) / 48000)
				maxErr = math.Max(maxErr, math.Abs(float64(w.Samples[i])-want))
			}
			if maxErr > 0.05 {
				t.Errorf("max interpolation error %.4f", maxErr)
			}
		})
	}
}

func TestNormalizerIgnoresEmptyBlocks(t *testing.T) {
	r := NewRingBuffer(16, 48000, 1)
	n := NewNormalizer(48000, func() *RingBuffer { return r })
	n.Process(nil)
	n.Process(&goaudio.Float32Buffer{})
	n.Process(block(2, 48000, nil))
	if r.Written() != 0 {
		t.Errorf("Written = %d, want 0", r.Written())
	}
}

func TestNormalizerHotPathZeroAllocs(t *testing.T) {
	r := NewRingBuffer(48000, 48000, 1)
	n := NewNormalizer(48000, func() *RingBuffer { return r })
	buf := block(2, 44100, make([]float32, 2*441))

	n.Process(buf) // warm-up sizes the scratch buffers
	allocs := testing.AllocsPerRun(100, func() {
		n.Process(buf)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Process hot path, got %.1f", allocs)
	}
}
