// SPDX-License-Identifier: MIT
package silence

import (
	"testing"
	"time"

	"tempokey/internal/config"
)

const hop = 500 * time.Millisecond

type step struct {
	rms float64
	n   int
}

// run feeds each step n times at hop spacing and counts what happened.
func run(m *Monitor, start time.Time, steps ...step) (resets, waitingOn int, now time.Time) {
	now = start
	for _, s := range steps {
		for range s.n {
			ev := m.Observe(s.rms, now)
			if ev.Reset {
				resets++
			}
			if ev.WaitingChanged && ev.Waiting {
				waitingOn++
			}
			now = now.Add(hop)
		}
	}
	return resets, waitingOn, now
}

func newMonitor() *Monitor {
	return NewMonitor(config.Defaults().Silence)
}

func TestSilenceFiresOneReset(t *testing.T) {
	tests := []struct {
		name       string
		steps      []step
		wantResets int
	}{
		{"short gap", []step{{0.1, 4}, {0, 10}, {0.1, 4}}, 0},
		{"long gap", []step{{0.1, 4}, {0, 30}}, 1},
		{"very long gap", []step{{0.1, 4}, {0, 200}}, 1},
		{"band noise does not re-arm", []step{{0, 30}, {0.0015, 5}, {0, 30}}, 1},
		{"loud burst re-arms", []step{{0, 30}, {0.1, 1}, {0, 30}}, 2},
		{"band noise holds the silence", []step{{0, 10}, {0.0015, 15}}, 1},
		{"band noise never starts one", []step{{0.0015, 40}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resets, _, _ := run(newMonitor(), time.Now(), tt.steps...)
			if resets != tt.wantResets {
				t.Errorf("resets = %d, want %d", resets, tt.wantResets)
			}
		})
	}
}

func TestResetTiming(t *testing.T) {
	m := newMonitor()
	start := time.Now()
	for i := 0; ; i++ {
		now := start.Add(time.Duration(i) * hop)
		if m.Observe(0, now).Reset {
			if got := now.Sub(start); got != 10*time.Second {
				t.Errorf("reset after %v, want 10s", got)
			}
			return
		}
		if i > 100 {
			t.Fatal("no reset")
		}
	}
}

func TestWaitingIndicator(t *testing.T) {
	m := newMonitor()
	start := time.Now()

	m.Observe(0, start)
	if ev := m.Observe(0, start.Add(time.Second)); ev.Waiting {
		t.Fatal("waiting before the label delay")
	}
	if ev := m.Observe(0, start.Add(2*time.Second)); !ev.Waiting || !ev.WaitingChanged {
		t.Fatalf("waiting not raised: %+v", ev)
	}
	if ev := m.Observe(0, start.Add(3*time.Second)); !ev.Waiting || ev.WaitingChanged {
		t.Errorf("indicator should hold without a change: %+v", ev)
	}
	if ev := m.Observe(0.5, start.Add(4*time.Second)); ev.Waiting || !ev.WaitingChanged {
		t.Errorf("indicator not cleared by audio: %+v", ev)
	}
	if st := m.State(); st.Silent || st.Waiting || !st.Since.IsZero() {
		t.Errorf("state after audio = %+v", st)
	}
}

func TestWaitingRaisedOncePerEpisode(t *testing.T) {
	_, waitingOn, _ := run(newMonitor(), time.Now(), step{0, 40}, step{0.2, 2}, step{0, 10})
	if waitingOn != 2 {
		t.Errorf("waiting raised %d times, want 2", waitingOn)
	}
}
