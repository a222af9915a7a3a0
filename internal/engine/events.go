// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"time"

	"tempokey/internal/audio"
	"tempokey/internal/key"
	"tempokey/internal/stabilizer"
)

// Event type tags carried in the "type" field.
const (
	TypeTempo   = "tempo"
	TypeKey     = "key"
	TypeSilence = "silence"
	TypeCapture = "capture"
)

// TempoEvent is the displayed tempo. BPM is absent while nothing is held.
type TempoEvent struct {
	Type       string           `json:"type"`
	BPM        float64          `json:"bpm,omitempty"`
	HasBPM     bool             `json:"has_bpm"`
	Confidence float64          `json:"confidence"`
	State      stabilizer.State `json:"state"`
	Band       stabilizer.Band  `json:"band"`
	Manual     bool             `json:"manual"`
	Taps       int              `json:"taps,omitempty"`
	Choice     string           `json:"choice,omitempty"`
	Timestamp  time.Time        `json:"ts"`
}

// KeyEvent is the displayed key. Key and Camelot are empty while nothing is
// held, including the atonal state.
type KeyEvent struct {
	Type        string           `json:"type"`
	Key         string           `json:"key,omitempty"`
	Camelot     string           `json:"camelot,omitempty"`
	Display     string           `json:"display,omitempty"`
	Confidence  float64          `json:"confidence"`
	State       stabilizer.State `json:"state"`
	Band        stabilizer.Band  `json:"band"`
	DisplayMode key.DisplayMode  `json:"display_mode"`
	Timestamp   time.Time        `json:"ts"`
}

// SilenceEvent reports the waiting-for-audio indicator.
type SilenceEvent struct {
	Type      string    `json:"type"`
	Waiting   bool      `json:"waiting"`
	Timestamp time.Time `json:"ts"`
}

// CaptureEvent reports a change of capture health.
type CaptureEvent struct {
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Backend    string    `json:"backend,omitempty"`
	Generation uint64    `json:"generation"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"ts"`
}

func newCaptureEvent(r audio.Report, now time.Time) CaptureEvent {
	ev := CaptureEvent{
		Type:       TypeCapture,
		Status:     r.Status.String(),
		Backend:    r.Backend,
		Generation: r.Generation,
		Timestamp:  now,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// VizFrame is the on-demand visualization view: current level and a
// decimated window of the newest samples. Both are zero below the silence cut.
type VizFrame struct {
	RMS       float64
	Samples   []float32
	Timestamp time.Time
}

// Describe summarizes an event for a transport.LoggingTransport. Timestamps
// and confidence jitter are left out so only display changes are logged.
func Describe(ev any) (kind, summary string) {
	switch ev := ev.(type) {
	case TempoEvent:
		bpm := "--"
		if ev.HasBPM {
			bpm = fmt.Sprintf("%.1f BPM", ev.BPM)
		}
		if ev.Manual {
			return ev.Type, fmt.Sprintf("%s (tap x%d)", bpm, ev.Taps)
		}
		return ev.Type, fmt.Sprintf("%s [%s, %s]", bpm, ev.State, ev.Band)
	case KeyEvent:
		name := ev.Display
		if name == "" {
			name = "--"
		}
		return ev.Type, fmt.Sprintf("%s [%s, %s]", name, ev.State, ev.Band)
	case SilenceEvent:
		if ev.Waiting {
			return ev.Type, "waiting for audio"
		}
		return ev.Type, "audio present"
	case CaptureEvent:
		s := ev.Status
		if ev.Backend != "" {
			s += " via " + ev.Backend
		}
		if ev.Error != "" {
			s += ": " + ev.Error
		}
		return ev.Type, s
	}
	return "", ""
}
