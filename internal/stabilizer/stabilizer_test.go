// SPDX-License-Identifier: MIT
package stabilizer

import (
	"math"
	"testing"
)

func eqString(a, b string) bool { return a == b }

func newKeyStab() *Stabilizer[string] {
	return New(Config{HighThreshold: 0.55, PromoteAfter: 5, Smoothing: 0.5}, eqString)
}

func est(v string, conf float64) Estimate[string] {
	return Estimate[string]{Value: v, Valid: true, Confidence: conf}
}

func TestHighConfidenceLocksImmediately(t *testing.T) {
	s := newKeyStab()
	st := s.Update(est("Am", 0.8))
	if st.State != Tracking || !st.HasLocked || st.Locked != "Am" || st.Value != "Am" {
		t.Fatalf("state = %+v, want tracking Am", st)
	}
	if st.Band != BandHigh {
		t.Errorf("Band = %v, want high", st.Band)
	}
}

func TestLowConfidencePromotesOnFifthRepeat(t *testing.T) {
	s := newKeyStab()
	for i := 1; i <= 4; i++ {
		st := s.Update(est("F#", 0.3))
		if st.State != Uncertain || st.HasLocked {
			t.Fatalf("sample %d: state = %v locked %v, want uncertain", i, st.State, st.HasLocked)
		}
		if st.Streak != i {
			t.Fatalf("sample %d: streak = %d", i, st.Streak)
		}
	}
	st := s.Update(est("F#", 0.3))
	if st.State != Tracking || st.Locked != "F#" {
		t.Errorf("fifth sample: state = %+v, want tracking F#", st)
	}
}

func TestChangeClearsLockAndRestartsStreak(t *testing.T) {
	s := newKeyStab()
	s.Update(est("C", 0.9))

	st := s.Update(est("G", 0.2))
	if st.HasLocked {
		t.Error("lock survived a value change")
	}
	if st.Streak != 1 {
		t.Errorf("Streak = %d, want 1", st.Streak)
	}
	if st.State != Uncertain {
		t.Errorf("State = %v, want uncertain", st.State)
	}
	if !st.HasValue || st.Value != "C" {
		t.Errorf("displayed value = %q, want the held C", st.Value)
	}

	// The new candidate keeps building its streak while C is still displayed.
	for range 3 {
		st = s.Update(est("G", 0.2))
	}
	if st.Streak != 4 || st.State != Uncertain {
		t.Fatalf("after 4 G samples: %+v", st)
	}
	st = s.Update(est("G", 0.2))
	if st.State != Tracking || st.Value != "G" {
		t.Errorf("G not promoted: %+v", st)
	}
}

func TestAlternatingCandidatesNeverPromote(t *testing.T) {
	s := newKeyStab()
	for i := range 20 {
		v := "D"
		if i%2 == 1 {
			v = "E"
		}
		if st := s.Update(est(v, 0.3)); st.State == Tracking || st.Streak > 1 {
			t.Fatalf("sample %d: %+v", i, st)
		}
	}
}

func TestRepeatedConfidentValueIsIdempotent(t *testing.T) {
	s := newKeyStab()
	first := s.Update(est("Bbm", 0.9))
	for i := range 10 {
		if st := s.Update(est("Bbm", 0.9)); st != first {
			t.Fatalf("repeat %d changed the state:\n%+v\n%+v", i, first, st)
		}
	}
}

func TestUnsetNeverChangesDisplay(t *testing.T) {
	s := newKeyStab()
	locked := s.Update(est("E", 0.9))
	for range 5 {
		if st := s.Update(Estimate[string]{}); st != locked {
			t.Fatalf("unset estimate changed state to %+v", st)
		}
	}

	fresh := newKeyStab()
	if st := fresh.Update(Estimate[string]{}); st.State != Analyzing || st.HasValue {
		t.Errorf("fresh stabiliser left analyzing: %+v", st)
	}
}

func TestSmoothingIsKeyedByValue(t *testing.T) {
	s := newKeyStab()
	s.Update(est("A", 0.8))
	st := s.Update(est("B", 0.4))
	if math.Abs(st.Confidence-0.4) > 1e-12 {
		t.Errorf("Confidence = %v, want 0.4 (no blend across values)", st.Confidence)
	}
	st = s.Update(est("B", 0.8))
	if math.Abs(st.Confidence-0.6) > 1e-12 {
		t.Errorf("Confidence = %v, want 0.6 after blending B", st.Confidence)
	}
	if st.State != Tracking {
		t.Errorf("raw 0.8 should lock at 0.55: %v", st.State)
	}
}

func TestRawConfidenceDecidesLock(t *testing.T) {
	s := newKeyStab()
	if st := s.Update(est("Am", 0.2)); st.State != Uncertain {
		t.Fatalf("first sample: %v, want uncertain", st.State)
	}
	st := s.Update(est("Am", 0.6))
	if st.State != Tracking || !st.HasLocked || st.Locked != "Am" {
		t.Errorf("raw 0.6 did not lock: %+v", st)
	}
	if math.Abs(st.Confidence-0.4) > 1e-12 || st.Band != BandLow {
		t.Errorf("shown confidence = %v band %v, want smoothed 0.4 low", st.Confidence, st.Band)
	}

	// Below the threshold a new value still waits for its streak.
	s = newKeyStab()
	s.Update(est("G", 0.9))
	s.Update(est("D", 0.9))
	st = s.Update(est("D", 0.3))
	if st.State != Tracking {
		t.Fatalf("locked D dropped: %+v", st)
	}
	s.Update(est("E", 0.2))
	st = s.Update(est("E", 0.5))
	if st.State != Uncertain || st.HasLocked {
		t.Errorf("raw 0.5 locked E: %+v", st)
	}
}

func TestSmoothingDisabled(t *testing.T) {
	s := New(Config{HighThreshold: 0.5, PromoteAfter: 5}, eqString)
	s.Update(est("A", 0.9))
	if st := s.Update(est("A", 0.2)); st.Confidence != 0.2 {
		t.Errorf("Confidence = %v, want raw 0.2", st.Confidence)
	}
}

func TestAtonalClearsEverything(t *testing.T) {
	s := newKeyStab()
	s.Update(est("C", 0.9))
	st := s.Update(Estimate[string]{Atonal: true})
	if st.State != Atonal || st.HasValue || st.HasLocked || st.Streak != 0 {
		t.Fatalf("atonal state = %+v", st)
	}
	// Tonal content afterwards starts from scratch.
	if st := s.Update(est("C", 0.3)); st.State != Uncertain || st.Streak != 1 {
		t.Errorf("after atonal: %+v", st)
	}
}

func TestTempoTolerance(t *testing.T) {
	s := New(Config{HighThreshold: 0.5, PromoteAfter: 5}, func(a, b float64) bool {
		return math.Abs(a-b) <= 1.0
	})
	s.Update(Estimate[float64]{Value: 128.0, Valid: true, Confidence: 0.9})
	st := s.Update(Estimate[float64]{Value: 128.6, Valid: true, Confidence: 0.2})
	if !st.HasLocked || st.State != Tracking {
		t.Errorf("jitter within tolerance dropped the lock: %+v", st)
	}
	st = s.Update(Estimate[float64]{Value: 140, Valid: true, Confidence: 0.2})
	if st.HasLocked || st.State != Uncertain || st.Value != 128.0 {
		t.Errorf("change outside tolerance: %+v", st)
	}
}

func TestReset(t *testing.T) {
	s := newKeyStab()
	s.Update(est("C", 0.9))
	s.Reset()
	if st := s.State(); st != (DisplayState[string]{}) {
		t.Errorf("Reset left %+v", st)
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		conf float64
		want Band
	}{
		{0, BandLow},
		{0.49, BandLow},
		{0.5, BandMedium},
		{0.74, BandMedium},
		{0.75, BandHigh},
		{1, BandHigh},
	}
	for _, tt := range tests {
		if got := BandFor(tt.conf); got != tt.want {
			t.Errorf("BandFor(%v) = %v, want %v", tt.conf, got, tt.want)
		}
	}
}
