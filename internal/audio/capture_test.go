// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"

	"tempokey/internal/config"
)

type fakeStream struct {
	format goaudio.Format
	closed bool
}

func (s *fakeStream) Format() goaudio.Format { return s.format }
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeBackend opens a stream at rate and hands the sink back to the test.
type fakeBackend struct {
	name string

	mu      sync.Mutex
	err     error
	rate    int
	opens   int
	sink    Sink
	onLost  func()
	streams []*fakeStream
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Open(_ string, sink Sink, onLost func()) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if b.err != nil {
		return nil, b.err
	}
	b.sink, b.onLost = sink, onLost
	s := &fakeStream{format: goaudio.Format{NumChannels: 1, SampleRate: b.rate}}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) set(rate int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate, b.err = rate, err
}

func (b *fakeBackend) feed(value float32, n int) {
	b.mu.Lock()
	sink, rate := b.sink, b.rate
	b.mu.Unlock()
	data := make([]float32, n)
	for i := range data {
		data[i] = value
	}
	sink(&goaudio.Float32Buffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: rate}, Data: data})
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{SampleRate: 48000, RingSeconds: 2}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCaptureFallbackOrder(t *testing.T) {
	loopback := &fakeBackend{name: "malgo-loopback", err: errors.New("loopback not supported: no device")}
	capture := &fakeBackend{name: "malgo-capture", rate: 48000}
	pa := &fakeBackend{name: "portaudio", rate: 48000}

	c := NewCapture(testCaptureConfig(), loopback, capture, pa)
	if err := c.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	rep := c.Report()
	if rep.Status != StatusRunning || rep.Backend != "malgo-capture" {
		t.Fatalf("Report = %+v, want running on malgo-capture", rep)
	}
	if pa.openCount() != 0 {
		t.Error("fallback continued past a working backend")
	}

	capture.feed(0.5, 480)
	if w := c.Snapshot(480); len(w.Samples) != 480 || w.Samples[0] != 0.5 {
		t.Errorf("snapshot = %d samples, first %v", len(w.Samples), w.Samples)
	}
}

func TestCaptureAllBackendsFail(t *testing.T) {
	a := &fakeBackend{name: "malgo-loopback", err: errors.New("device not found")}
	b := &fakeBackend{name: "portaudio", err: errors.New("Invalid device")}

	c := NewCapture(testCaptureConfig(), a, b)
	err := c.Start(context.Background(), "")
	defer c.Stop()

	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Start error = %v, want ErrNoDevice", err)
	}
	if c.Status() != StatusFailed {
		t.Errorf("Status = %v, want failed", c.Status())
	}
	if rep := c.Report(); rep.Err == nil {
		t.Error("Report.Err should carry the failure")
	}
	if w := c.Snapshot(100); len(w.Samples) != 0 {
		t.Errorf("failed capture returned %d samples", len(w.Samples))
	}
}

func TestCaptureRecoversOnDeviceChange(t *testing.T) {
	b := &fakeBackend{name: "malgo-loopback", err: errors.New("no default device")}
	c := NewCapture(testCaptureConfig(), b)
	_ = c.Start(context.Background(), "")
	defer c.Stop()

	if c.Status() != StatusFailed {
		t.Fatalf("Status = %v, want failed", c.Status())
	}

	b.set(48000, nil)
	c.NotifyDeviceChange()
	waitFor(t, "capture to recover", func() bool { return c.Status() == StatusRunning })
}

// After a switch from a 44.1 kHz device to a 48 kHz device nothing captured
// before the switch may appear in a snapshot.
func TestCaptureDeviceSwitchDropsOldSamples(t *testing.T) {
	b := &fakeBackend{name: "malgo-loopback", rate: 44100}
	c := NewCapture(testCaptureConfig(), b)
	if err := c.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	b.feed(0.5, 44100)
	gen := c.Generation()
	if w := c.Snapshot(48000); len(w.Samples) == 0 || w.Generation != gen {
		t.Fatalf("pre-switch snapshot: %d samples, gen %d", len(w.Samples), w.Generation)
	}

	b.set(48000, nil)
	b.onLost()
	waitFor(t, "generation change", func() bool { return c.Generation() != gen })
	waitFor(t, "stream reopen", func() bool { return b.openCount() == 2 && c.Status() == StatusRunning })

	if !b.streams[0].closed {
		t.Error("old stream was not closed before reopening")
	}

	b.feed(-0.25, 48000)
	w := c.Snapshot(96000)
	if w.Generation == gen {
		t.Fatalf("snapshot still from generation %d", gen)
	}
	if len(w.Samples) != 48000 {
		t.Fatalf("snapshot has %d samples, want 48000", len(w.Samples))
	}
	for i, s := range w.Samples {
		if s == 0.5 {
			t.Fatalf("pre-switch sample at %d", i)
		}
	}
}

func TestCaptureStartTwice(t *testing.T) {
	c := NewCapture(testCaptureConfig(), &fakeBackend{name: "portaudio", rate: 48000})
	if err := c.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	if err := c.Start(context.Background(), ""); err == nil {
		t.Error("second Start should fail")
	}
}

func TestCaptureStop(t *testing.T) {
	b := &fakeBackend{name: "portaudio", rate: 48000}
	c := NewCapture(testCaptureConfig(), b)
	if err := c.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Status() != StatusIdle || !b.streams[0].closed {
		t.Errorf("after Stop status=%v closed=%v", c.Status(), b.streams[0].closed)
	}
}
