package audio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any PortAudio operation and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice resolves a device hint to a PortAudio input device. An empty
// hint selects the system default input, a number selects by index and any
// other string matches a case-insensitive substring of the device name.
func InputDevice(hint string) (*portaudio.DeviceInfo, error) {
	if hint == "" {
		device, err := paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, &CaptureError{Kind: NoDevice, Backend: "portaudio", Err: err}
		}
		return device, nil
	}

	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}

	if id, err := strconv.Atoi(hint); err == nil {
		if id < 0 || id >= len(devices) {
			return nil, noDevice("portaudio", hint)
		}
		return devices[id], nil
	}

	needle := strings.ToLower(hint)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, noDevice("portaudio", hint)
}

// ListDevices prints the devices every backend can see. For each device it
// shows the backend, index and name, direction, channel counts and the
// default sample rate where the backend reports one.
func ListDevices(w io.Writer) error {
	devices, err := GetDevices()
	if err != nil {
		return err
	}

	heading := color.New(color.Bold, color.FgCyan)
	def := color.New(color.FgGreen)

	backend := ""
	for _, d := range devices {
		if d.Backend != backend {
			backend = d.Backend
			heading.Fprintf(w, "\n%s devices\n\n", backend)
		}
		line := fmt.Sprintf("[%d] %s (%s)", d.ID, d.Name, d.Direction())
		if d.Default {
			def.Fprintf(w, "%s  default\n", line)
		} else {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		if d.DefaultSampleRate > 0 {
			fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// paDevices returns all PortAudio devices converted to Device.
func paDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer Terminate()

	infos, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	defaultName := ""
	if d, err := paLibDefaultInputDeviceFunc(); err == nil && d != nil {
		defaultName = d.Name
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			Backend:           "portaudio",
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           info.Name == defaultName && info.MaxInputChannels > 0,
		}
	}
	return devices, nil
}
