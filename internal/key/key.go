// SPDX-License-Identifier: MIT

// Package key names musical keys and renders them in the notations the
// monitor can display.
package key

import (
	"fmt"
	"strings"
)

// Mode is major or minor.
type Mode int

const (
	Major Mode = iota
	Minor
)

func (m Mode) String() string {
	if m == Minor {
		return "minor"
	}
	return "major"
}

var tonicNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var (
	majorCamelot = [12]string{"8B", "3B", "10B", "5B", "12B", "7B", "2B", "9B", "4B", "11B", "6B", "1B"}
	minorCamelot = [12]string{"5A", "12A", "7A", "2A", "9A", "4A", "11A", "6A", "1A", "8A", "3A", "10A"}
)

// Key is a tonic pitch class (0 = C) and a mode.
type Key struct {
	Tonic int
	Mode  Mode
}

// String returns the conventional name, e.g. "C" or "F#m".
func (k Key) String() string {
	name := tonicNames[mod12(k.Tonic)]
	if k.Mode == Minor {
		return name + "m"
	}
	return name
}

// Camelot returns the wheel code, e.g. "8B" for C major, "5A" for C minor.
func (k Key) Camelot() string {
	if k.Mode == Minor {
		return minorCamelot[mod12(k.Tonic)]
	}
	return majorCamelot[mod12(k.Tonic)]
}

// Parse reads a key name such as "A", "Bbm" or "F#m".
func Parse(s string) (Key, error) {
	s = strings.TrimSpace(s)
	mode := Major
	if rest, ok := strings.CutSuffix(s, "m"); ok {
		s, mode = rest, Minor
	}
	flat := false
	if rest, ok := strings.CutSuffix(s, "b"); ok && len(rest) > 0 {
		s, flat = rest, true
	}
	for i, name := range tonicNames {
		if strings.EqualFold(name, s) {
			if flat {
				i--
			}
			return Key{Tonic: mod12(i), Mode: mode}, nil
		}
	}
	return Key{}, fmt.Errorf("invalid key name %q", s)
}

// DisplayMode selects how a resolved key is rendered. It has no effect on
// estimation.
type DisplayMode int

const (
	DisplayBoth DisplayMode = iota
	DisplayName
	DisplayCamelot
)

func (d DisplayMode) String() string {
	switch d {
	case DisplayName:
		return "name"
	case DisplayCamelot:
		return "camelot"
	default:
		return "both"
	}
}

// MarshalText renders the mode as its lower-case name.
func (d DisplayMode) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Next cycles through the display modes.
func (d DisplayMode) Next() DisplayMode {
	return (d + 1) % 3
}

// Format renders k in this display mode.
func (d DisplayMode) Format(k Key) string {
	switch d {
	case DisplayName:
		return k.String()
	case DisplayCamelot:
		return k.Camelot()
	default:
		return k.String() + " (" + k.Camelot() + ")"
	}
}

// ParseDisplayMode accepts "both", "name" or "camelot".
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return DisplayBoth, nil
	case "name", "key":
		return DisplayName, nil
	case "camelot":
		return DisplayCamelot, nil
	}
	return DisplayBoth, fmt.Errorf("invalid key display mode %q", s)
}

func mod12(i int) int {
	return ((i % 12) + 12) % 12
}
