// SPDX-License-Identifier: MIT

// Package stabilizer turns jittery per-hop estimates into the display state
// a listener sees. One Stabilizer tracks one quantity (tempo or key) and is
// owned by a single goroutine.
package stabilizer

import (
	"time"
)

// State is the label shown next to a tracked value.
type State int

const (
	Analyzing State = iota
	Tracking
	Uncertain
	Atonal
)

func (s State) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Uncertain:
		return "uncertain"
	case Atonal:
		return "atonal"
	default:
		return "analyzing"
	}
}

// MarshalText renders the state as its lower-case name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Band is confidence wording only; it never drives transitions.
type Band int

const (
	BandLow Band = iota
	BandMedium
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandHigh:
		return "high"
	case BandMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalText renders the band as its lower-case name.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// BandFor maps a confidence onto its label band.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= 0.75:
		return BandHigh
	case confidence >= 0.5:
		return BandMedium
	default:
		return BandLow
	}
}

// Estimate is one raw reading. Valid false means nothing was detected this
// hop; Value must then be ignored. Atonal is only reported for key.
type Estimate[V any] struct {
	Value      V
	Valid      bool
	Confidence float64
	Atonal     bool
	Timestamp  time.Time
}

// DisplayState is what the UI renders for one tracked quantity.
type DisplayState[V any] struct {
	Value      V
	HasValue   bool
	State      State
	Locked     V
	HasLocked  bool
	Streak     int
	Confidence float64
	Band       Band
}

// Config holds the transition thresholds.
type Config struct {
	HighThreshold float64 // confidence that locks immediately
	PromoteAfter  int     // consecutive low-confidence repeats that lock anyway
	Smoothing     float64 // EMA weight of the newest confidence, 0 disables
}

// Stabilizer applies the display rules to a stream of estimates.
// Not safe for concurrent use.
type Stabilizer[V any] struct {
	cfg   Config
	equal func(a, b V) bool

	st DisplayState[V]

	streakVal V
	hasStreak bool

	emaVal V
	hasEMA bool
	ema    float64
}

// New creates a stabilizer in the Analyzing state. equal decides whether two
// readings are the same displayed value.
func New[V any](cfg Config, equal func(a, b V) bool) *Stabilizer[V] {
	if cfg.PromoteAfter < 1 {
		cfg.PromoteAfter = 1
	}
	return &Stabilizer[V]{cfg: cfg, equal: equal}
}

// State returns the current display state.
func (s *Stabilizer[V]) State() DisplayState[V] { return s.st }

// Reset returns to Analyzing with no value, lock, streak or smoothing.
func (s *Stabilizer[V]) Reset() {
	var zero V
	s.st = DisplayState[V]{}
	s.streakVal, s.hasStreak = zero, false
	s.emaVal, s.hasEMA, s.ema = zero, false, 0
}

// Update applies one estimate and returns the new display state.
func (s *Stabilizer[V]) Update(e Estimate[V]) DisplayState[V] {
	if e.Atonal {
		s.Reset()
		s.st.State = Atonal
		return s.st
	}
	if !e.Valid {
		return s.st
	}

	conf := s.smooth(e.Value, e.Confidence)
	s.st.Confidence = conf
	s.st.Band = BandFor(conf)

	if s.st.HasValue && !s.equal(e.Value, s.st.Value) {
		s.clearLock()
		if s.hasStreak && !s.equal(e.Value, s.streakVal) {
			s.clearStreak()
		}
	}

	// Locking follows the raw reading; the smoothed value is only shown.
	switch {
	case e.Confidence >= s.cfg.HighThreshold:
		s.lock(e.Value)

	case (s.st.HasValue && s.equal(e.Value, s.st.Value)) || (s.hasStreak && s.equal(e.Value, s.streakVal)):
		if s.hasStreak && s.equal(e.Value, s.streakVal) {
			s.st.Streak++
		} else {
			s.streakVal, s.hasStreak, s.st.Streak = e.Value, true, 1
		}
		if s.st.Streak >= s.cfg.PromoteAfter {
			s.lock(e.Value)
		} else if !s.st.HasLocked {
			s.st.State = Uncertain
		}

	default:
		s.st.State = Uncertain
		s.streakVal, s.hasStreak, s.st.Streak = e.Value, true, 1
	}
	return s.st
}

// smooth blends confidences of the same value and restarts on any change of
// identity, so two different values are never mixed.
func (s *Stabilizer[V]) smooth(v V, raw float64) float64 {
	if s.cfg.Smoothing <= 0 || !s.hasEMA || !s.equal(v, s.emaVal) {
		s.emaVal, s.hasEMA, s.ema = v, true, raw
		return raw
	}
	a := s.cfg.Smoothing
	s.ema = a*raw + (1-a)*s.ema
	return s.ema
}

func (s *Stabilizer[V]) lock(v V) {
	s.st.Value, s.st.HasValue = v, true
	s.st.Locked, s.st.HasLocked = v, true
	s.st.State = Tracking
	s.clearStreak()
}

func (s *Stabilizer[V]) clearLock() {
	var zero V
	s.st.Locked, s.st.HasLocked = zero, false
}

func (s *Stabilizer[V]) clearStreak() {
	var zero V
	s.streakVal, s.hasStreak, s.st.Streak = zero, false, 0
}
