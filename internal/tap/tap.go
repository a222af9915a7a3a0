// SPDX-License-Identifier: MIT

// Package tap computes a manual tempo from user taps.
package tap

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"tempokey/internal/config"
)

// singleIntervalConfidence is reported while only one interval is known.
const singleIntervalConfidence = 0.5

// Session holds the taps of one manual override. While a session is active
// the automatic tempo display is suppressed. Not safe for concurrent use.
type Session struct {
	cfg    config.TapConfig
	taps   []time.Time
	bpm    float64
	active bool
}

// NewSession creates an inactive session.
func NewSession(cfg config.TapConfig) *Session {
	if cfg.MaxTaps < 2 {
		cfg.MaxTaps = config.DefaultTapMaxTaps
	}
	if cfg.Window <= 0 {
		cfg.Window = config.DefaultTapWindow
	}
	return &Session{cfg: cfg, taps: make([]time.Time, 0, cfg.MaxTaps)}
}

// Tap records a tap at now and activates the session. Once two taps fall
// inside the window it returns 60000 / mean interval in ms, clamped to the
// configured range.
func (s *Session) Tap(now time.Time) (float64, bool) {
	s.active = true

	keep := s.taps[:0]
	for _, t := range s.taps {
		if now.Sub(t) <= s.cfg.Window && !t.After(now) {
			keep = append(keep, t)
		}
	}
	s.taps = append(keep, now)
	if over := len(s.taps) - s.cfg.MaxTaps; over > 0 {
		s.taps = append(s.taps[:0], s.taps[over:]...)
	}

	if len(s.taps) < 2 {
		return s.bpm, s.bpm > 0
	}
	span := s.taps[len(s.taps)-1].Sub(s.taps[0])
	meanMS := float64(span) / float64(time.Millisecond) / float64(len(s.taps)-1)
	if meanMS <= 0 {
		return s.bpm, s.bpm > 0
	}
	s.bpm = math.Min(math.Max(60000/meanMS, s.cfg.MinBPM), s.cfg.MaxBPM)
	return s.bpm, true
}

// Confidence rates how evenly the current taps are spaced: 1 for a steady
// pulse, falling with the coefficient of variation of the intervals.
func (s *Session) Confidence() float64 {
	n := len(s.taps) - 1
	switch {
	case n < 1:
		return 0
	case n == 1:
		return singleIntervalConfidence
	}
	intervals := make([]float64, n)
	for i := range intervals {
		intervals[i] = float64(s.taps[i+1].Sub(s.taps[i]))
	}
	mean, std := stat.MeanStdDev(intervals, nil)
	if mean <= 0 {
		return 0
	}
	return math.Min(math.Max(1-4*std/mean, 0), 1)
}

// BPM returns the last computed tempo.
func (s *Session) BPM() (float64, bool) {
	return s.bpm, s.bpm > 0
}

// Active reports whether manual mode is on.
func (s *Session) Active() bool { return s.active }

// Taps returns how many taps are inside the window.
func (s *Session) Taps() int { return len(s.taps) }

// Exit discards the session and hands tempo back to the estimator.
func (s *Session) Exit() {
	s.taps = s.taps[:0]
	s.bpm = 0
	s.active = false
}
