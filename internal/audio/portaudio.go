// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"

	applog "tempokey/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

// Seams over the PortAudio library so device selection is testable without
// audio hardware.
var (
	paLibInitialize             = portaudio.Initialize
	paLibTerminate              = portaudio.Terminate
	paLibDevicesFunc            = portaudio.Devices
	paLibDefaultInputDeviceFunc = portaudio.DefaultInputDevice
)

// PortAudioBackend captures from a PortAudio input device. It is the last
// resort of the fallback chain: it needs a monitor/loopback input (e.g. a
// virtual cable or the PulseAudio monitor) to hear system output.
type PortAudioBackend struct {
	FramesPerBuffer int
}

// NewPortAudioBackend returns the PortAudio backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{FramesPerBuffer: 1024}
}

func (b *PortAudioBackend) Name() string { return "portaudio" }

func (b *PortAudioBackend) Open(hint string, sink Sink, _ func()) (Stream, error) {
	if err := Initialize(); err != nil {
		return nil, classifyError(b.Name(), err)
	}

	device, err := InputDevice(hint)
	if err != nil {
		_ = Terminate()
		return nil, classifyError(b.Name(), err)
	}

	channels := min(device.MaxInputChannels, 2)
	if channels < 1 {
		_ = Terminate()
		return nil, noDevice(b.Name(), device.Name)
	}

	s := &paStream{
		sink: sink,
		format: goaudio.Format{
			NumChannels: channels,
			SampleRate:  int(device.DefaultSampleRate),
		},
	}
	s.buf = &goaudio.Float32Buffer{Format: &s.format}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  device.DefaultHighInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: b.FramesPerBuffer,
		SampleRate:      device.DefaultSampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.processInputStream)
	if err != nil {
		_ = Terminate()
		return nil, classifyError(b.Name(), fmt.Errorf("failed to open input stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = Terminate()
		return nil, classifyError(b.Name(), fmt.Errorf("failed to start input stream: %w", err))
	}
	s.stream = stream
	applog.Infof("Capture: portaudio streaming from %q (%d ch @ %.0f Hz)", device.Name, channels, device.DefaultSampleRate)
	return s, nil
}

// Probe reports the input device Open would select.
func (b *PortAudioBackend) Probe(hint string) (DeviceSignature, error) {
	if err := Initialize(); err != nil {
		return DeviceSignature{}, classifyError(b.Name(), err)
	}
	defer Terminate()

	device, err := InputDevice(hint)
	if err != nil {
		return DeviceSignature{}, classifyError(b.Name(), err)
	}
	return DeviceSignature{Name: device.Name, SampleRate: int(device.DefaultSampleRate)}, nil
}

type paStream struct {
	stream *portaudio.Stream
	format goaudio.Format
	buf    *goaudio.Float32Buffer
	sink   Sink
	once   sync.Once
}

func (s *paStream) Format() goaudio.Format { return s.format }

// processInputStream forwards the PortAudio buffer without copying; the sink
// finishes with it before the callback returns.
func (s *paStream) processInputStream(in []float32) {
	s.buf.Data = in
	s.sink(s.buf)
}

func (s *paStream) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if termErr := Terminate(); termErr != nil && err == nil {
			err = termErr
		}
	})
	return err
}

var _ Backend = (*PortAudioBackend)(nil)
var _ Prober = (*PortAudioBackend)(nil)
