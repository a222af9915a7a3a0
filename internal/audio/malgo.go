// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	applog "tempokey/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/gen2brain/malgo"
)

// MalgoBackend captures through miniaudio. In loopback mode it records what a
// playback device is rendering (WASAPI); in capture mode it opens an input,
// which on PulseAudio/PipeWire is typically the monitor of the output.
type MalgoBackend struct {
	name string
	mode malgo.DeviceType
}

// NewMalgoLoopback returns the miniaudio loopback backend.
func NewMalgoLoopback() *MalgoBackend {
	return &MalgoBackend{name: "malgo-loopback", mode: malgo.Loopback}
}

// NewMalgoCapture returns the miniaudio capture backend.
func NewMalgoCapture() *MalgoBackend {
	return &MalgoBackend{name: "malgo-capture", mode: malgo.Capture}
}

func (b *MalgoBackend) Name() string { return b.name }

// listType is the device list a hint is resolved against. Loopback records a
// playback endpoint.
func (b *MalgoBackend) listType() malgo.DeviceType {
	if b.mode == malgo.Loopback {
		return malgo.Playback
	}
	return malgo.Capture
}

func (b *MalgoBackend) Open(hint string, sink Sink, onLost func()) (Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyError(b.name, fmt.Errorf("failed to initialize audio context: %w", err))
	}

	deviceConfig := malgo.DefaultDeviceConfig(b.mode)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 2
	deviceConfig.SampleRate = 0 // device native rate
	deviceConfig.Alsa.NoMMap = 1

	if hint != "" {
		infos, err := ctx.Devices(b.listType())
		if err != nil {
			freeContext(ctx)
			return nil, classifyError(b.name, fmt.Errorf("failed to enumerate devices: %w", err))
		}
		found := false
		for i := range infos {
			if strings.Contains(strings.ToLower(infos[i].Name()), strings.ToLower(hint)) {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeContext(ctx)
			return nil, noDevice(b.name, hint)
		}
	}

	s := &malgoStream{ctx: ctx, sink: sink, buf: &goaudio.Float32Buffer{Format: &goaudio.Format{}}}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.processInputStream,
		Stop: func() {
			if !s.closing.Load() && onLost != nil {
				onLost()
			}
		},
	})
	if err != nil {
		freeContext(ctx)
		return nil, classifyError(b.name, fmt.Errorf("failed to initialize audio device: %w", err))
	}
	s.device = device
	s.format = goaudio.Format{
		NumChannels: int(device.CaptureChannels()),
		SampleRate:  int(device.SampleRate()),
	}
	*s.buf.Format = s.format

	if err := device.Start(); err != nil {
		s.closing.Store(true)
		device.Uninit()
		freeContext(ctx)
		return nil, classifyError(b.name, fmt.Errorf("failed to start audio device: %w", err))
	}
	applog.Infof("Capture: %s streaming (%d ch @ %d Hz)", b.name, s.format.NumChannels, s.format.SampleRate)
	return s, nil
}

// Probe reports the current default device of the backend's device list.
func (b *MalgoBackend) Probe(hint string) (DeviceSignature, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return DeviceSignature{}, classifyError(b.name, err)
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(b.listType())
	if err != nil {
		return DeviceSignature{}, classifyError(b.name, err)
	}
	for i := range infos {
		name := infos[i].Name()
		if hint != "" && strings.Contains(strings.ToLower(name), strings.ToLower(hint)) {
			return DeviceSignature{Name: name}, nil
		}
		if hint == "" && infos[i].IsDefault != 0 {
			return DeviceSignature{Name: name}, nil
		}
	}
	return DeviceSignature{}, noDevice(b.name, hint)
}

// malgoDevices lists playback and capture devices for ListDevices.
func malgoDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	var out []Device
	for _, kind := range []struct {
		t      malgo.DeviceType
		output bool
	}{{malgo.Playback, true}, {malgo.Capture, false}} {
		infos, err := ctx.Devices(kind.t)
		if err != nil {
			return nil, err
		}
		for i := range infos {
			d := Device{ID: len(out), Name: infos[i].Name(), Backend: "malgo", Default: infos[i].IsDefault != 0}
			if kind.output {
				d.MaxOutputChannels = 2
			} else {
				d.MaxInputChannels = 2
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

type malgoStream struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	format  goaudio.Format
	sink    Sink
	buf     *goaudio.Float32Buffer
	closing atomic.Bool
	once    sync.Once
}

func (s *malgoStream) Format() goaudio.Format { return s.format }

// processInputStream decodes little-endian f32 frames into the reusable
// buffer. Runs on the miniaudio thread.
func (s *malgoStream) processInputStream(_, input []byte, frameCount uint32) {
	n := int(frameCount) * s.format.NumChannels
	if n*4 > len(input) {
		n = len(input) / 4
	}
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]float32, n)
	}
	data := s.buf.Data[:n]
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}
	s.buf.Data = data
	s.sink(s.buf)
}

func (s *malgoStream) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)
		s.device.Uninit()
		freeContext(s.ctx)
	})
	return nil
}

var _ Backend = (*MalgoBackend)(nil)
var _ Prober = (*MalgoBackend)(nil)
