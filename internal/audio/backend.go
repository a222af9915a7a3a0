// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	goaudio "github.com/go-audio/audio"
)

// Sink receives interleaved float blocks from a backend callback. The buffer
// is reused by the backend after Sink returns.
type Sink func(buf *goaudio.Float32Buffer)

// Backend opens a capture stream on one audio API.
type Backend interface {
	Name() string
	// Open starts delivering blocks to sink. onLost is invoked, possibly from
	// the audio thread, when the backend loses its device.
	Open(hint string, sink Sink, onLost func()) (Stream, error)
}

// Stream is a running capture stream.
type Stream interface {
	Format() goaudio.Format
	Close() error
}

// DeviceSignature identifies the device a backend would open right now.
type DeviceSignature struct {
	Name       string
	SampleRate int
}

// Prober is implemented by backends that can report the current default
// device without opening it. The capture watcher polls it to detect
// default-device switches.
type Prober interface {
	Probe(hint string) (DeviceSignature, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "malgo-loopback":
		return NewMalgoLoopback(), nil
	case "malgo-capture":
		return NewMalgoCapture(), nil
	case "portaudio":
		return NewPortAudioBackend(), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", name)
	}
}

// NewBackends resolves a configured fallback order.
func NewBackends(names []string) ([]Backend, error) {
	out := make([]Backend, 0, len(names))
	for _, name := range names {
		b, err := NewBackend(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
