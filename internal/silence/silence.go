// SPDX-License-Identifier: MIT

// Package silence watches the input level for gaps in playback. A short gap
// raises a waiting indicator; a long one requests a single soft reset.
package silence

import (
	"math"
	"time"

	"tempokey/internal/config"
)

// Event is the outcome of one observation.
type Event struct {
	Waiting        bool // waiting-for-audio indicator after this observation
	WaitingChanged bool
	Reset          bool // fire a soft reset now
}

// State is a snapshot of the monitor.
type State struct {
	Waiting    bool
	Silent     bool
	Since      time.Time // start of the current silence, zero when not silent
	ResetFired bool      // a reset already fired for this silence episode
}

// Monitor applies enter/exit hysteresis to an RMS stream. Levels between the
// two thresholds neither start nor end a silence. Not safe for concurrent use.
type Monitor struct {
	cfg config.SilenceConfig

	since   time.Time
	silent  bool
	waiting bool
	fired   bool
}

// NewMonitor creates a monitor that starts in the non-silent state.
func NewMonitor(cfg config.SilenceConfig) *Monitor {
	if cfg.ExitThreshold < cfg.EnterThreshold {
		cfg.ExitThreshold = cfg.EnterThreshold
	}
	return &Monitor{cfg: cfg}
}

// Observe feeds one RMS reading taken at now.
func (m *Monitor) Observe(rms float64, now time.Time) Event {
	var ev Event
	switch {
	case math.IsNaN(rms):
	case rms > m.cfg.ExitThreshold:
		m.silent = false
		m.since = time.Time{}
		m.fired = false
		if m.waiting {
			m.waiting = false
			ev.WaitingChanged = true
		}
	case rms <= m.cfg.EnterThreshold && !m.silent:
		m.silent = true
		m.since = now
	}

	if m.silent {
		quiet := now.Sub(m.since)
		if !m.waiting && quiet >= m.cfg.LabelWait {
			m.waiting = true
			ev.WaitingChanged = true
		}
		if !m.fired && quiet >= m.cfg.Timeout {
			m.fired = true
			ev.Reset = true
		}
	}
	ev.Waiting = m.waiting
	return ev
}

// State returns the current monitor state.
func (m *Monitor) State() State {
	return State{Waiting: m.waiting, Silent: m.silent, Since: m.since, ResetFired: m.fired}
}
