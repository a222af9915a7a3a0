// SPDX-License-Identifier: MIT
/*
Package audio implements loopback capture for the analyzer:
- Lock-free single-producer ring buffer with per-device generations
- Mono/48 kHz normalization of device blocks
- Backend fallback chain (miniaudio loopback, miniaudio capture, PortAudio)
- Device-change handling that rebuilds the ring before restarting

Thread Safety:
- The capture callback only touches atomics and pre-allocated scratch
- Readers load the current ring through an atomic pointer, so a snapshot
  always belongs to exactly one generation
- Stream lifecycle (open/close/restart) is serialized by a mutex that the
  callback never takes
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tempokey/internal/config"
	applog "tempokey/internal/log"
)

// Status is the capture health reported to the UI.
type Status int32

const (
	StatusIdle Status = iota
	StatusRunning
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Report is a point-in-time view of the capture state.
type Report struct {
	Status     Status
	Backend    string
	Generation uint64
	Err        error
}

// Capture owns the active stream and the current ring buffer.
type Capture struct {
	cfg      config.CaptureConfig
	backends []Backend

	ring       atomic.Pointer[RingBuffer]
	generation atomic.Uint64
	status     atomic.Int32

	mu      sync.Mutex // guards the fields below; never taken by the callback
	hint    string
	stream  Stream
	active  string
	lastErr error
	lastSig DeviceSignature
	cancel  context.CancelFunc

	changes chan struct{}
	wg      sync.WaitGroup
}

// NewCapture creates a capture manager that tries backends in order.
func NewCapture(cfg config.CaptureConfig, backends ...Backend) *Capture {
	c := &Capture{
		cfg:      cfg,
		backends: backends,
		changes:  make(chan struct{}, 1),
	}
	if c.cfg.SampleRate <= 0 {
		c.cfg.SampleRate = config.DefaultSampleRate
	}
	if c.cfg.RingSeconds <= 0 {
		c.cfg.RingSeconds = config.DefaultRingSeconds
	}
	return c
}

// Start opens the first backend that works and starts the device watcher.
// If every backend fails the capture stays in StatusFailed and retries on
// the next device-change signal; the returned error describes the failures.
func (c *Capture) Start(ctx context.Context, hint string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("capture already started")
	}
	c.hint = hint
	err := c.openLocked()
	c.lastSig = c.probeLocked()
	watchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.watch(watchCtx)
	return err
}

// Stop closes the active stream and stops watching for device changes.
func (c *Capture) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.closeLocked()
	c.status.Store(int32(StatusIdle))
	return err
}

// NotifyDeviceChange requests a rebuild against the current default device.
// Safe from any goroutine including audio callbacks; repeated calls coalesce.
func (c *Capture) NotifyDeviceChange() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Snapshot copies out up to n of the newest samples of the current generation.
func (c *Capture) Snapshot(n int) Window {
	r := c.ring.Load()
	if r == nil {
		return Window{SampleRate: c.cfg.SampleRate, Timestamp: time.Now()}
	}
	return r.Snapshot(n)
}

// Latest fills dst with the newest samples without allocating.
func (c *Capture) Latest(dst []float32) int {
	r := c.ring.Load()
	if r == nil {
		clear(dst)
		return 0
	}
	return r.Latest(dst)
}

// Discard drops the accumulated history of the current ring.
func (c *Capture) Discard() {
	if r := c.ring.Load(); r != nil {
		r.Discard()
	}
}

// Status returns the current capture status.
func (c *Capture) Status() Status {
	return Status(c.status.Load())
}

// Generation returns the generation of the current ring.
func (c *Capture) Generation() uint64 {
	return c.generation.Load()
}

// Report returns status, active backend and the last failure.
func (c *Capture) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Report{
		Status:     c.Status(),
		Backend:    c.active,
		Generation: c.generation.Load(),
		Err:        c.lastErr,
	}
}

func (c *Capture) watch(ctx context.Context) {
	defer c.wg.Done()

	var tick <-chan time.Time
	if c.cfg.ProbeInterval > 0 {
		ticker := time.NewTicker(c.cfg.ProbeInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changes:
			c.restart("device change signalled")
		case <-tick:
			c.mu.Lock()
			sig := c.probeLocked()
			changed := sig != (DeviceSignature{}) && sig != c.lastSig
			c.mu.Unlock()
			if changed {
				c.restart(fmt.Sprintf("default device now %q @ %d Hz", sig.Name, sig.SampleRate))
			}
		}
	}
}

// restart stops the producer, installs a fresh ring and reopens.
func (c *Capture) restart(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	applog.Infof("Capture: rebuilding stream (%s)", reason)
	if err := c.closeLocked(); err != nil {
		applog.Warnf("Capture: error closing %s stream: %v", c.active, err)
	}
	if err := c.openLocked(); err != nil {
		applog.Errorf("Capture: %v", err)
	}
	c.lastSig = c.probeLocked()
}

func (c *Capture) openLocked() error {
	ring := NewRingBuffer(
		int(c.cfg.RingSeconds*float64(c.cfg.SampleRate)),
		c.cfg.SampleRate,
		c.generation.Add(1),
	)
	c.ring.Store(ring)
	norm := NewNormalizer(c.cfg.SampleRate, c.ring.Load)

	var errs []error
	for _, b := range c.backends {
		stream, err := b.Open(c.hint, norm.Process, c.NotifyDeviceChange)
		if err != nil {
			ce := classifyError(b.Name(), err)
			errs = append(errs, ce)
			applog.Warnf("Capture: backend %s unavailable (%v), falling back", b.Name(), ce)
			continue
		}
		c.stream = stream
		c.active = b.Name()
		c.lastErr = nil
		c.status.Store(int32(StatusRunning))
		f := stream.Format()
		applog.Infof("Capture: using %s (%d ch @ %d Hz), generation %d",
			b.Name(), f.NumChannels, f.SampleRate, ring.Generation())
		return nil
	}

	c.active = ""
	c.status.Store(int32(StatusFailed))
	if len(errs) == 0 {
		errs = append(errs, &CaptureError{Kind: BackendInitFailed, Err: errors.New("no capture backends configured")})
	}
	c.lastErr = fmt.Errorf("all capture backends failed: %w", errors.Join(errs...))
	return c.lastErr
}

func (c *Capture) closeLocked() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}

// probeLocked asks the first probing backend for the device it would open.
func (c *Capture) probeLocked() DeviceSignature {
	for _, b := range c.backends {
		p, ok := b.(Prober)
		if !ok {
			continue
		}
		sig, err := p.Probe(c.hint)
		if err != nil {
			applog.Debugf("Capture: probe via %s failed: %v", b.Name(), err)
			continue
		}
		return sig
	}
	return DeviceSignature{}
}
