package audio

import "errors"

// Device represents an audio device as seen by one backend.
type Device struct {
	ID                int
	Name              string
	Backend           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	Default           bool
}

// Direction describes whether the device records, plays or both.
func (d Device) Direction() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unknown"
	}
}

// Device enumerators, replaceable in tests.
var (
	portAudioDeviceList = paDevices
	malgoDeviceList     = malgoDevices
)

// GetDevices returns the devices of every backend. A backend that cannot
// enumerate is skipped unless all of them fail.
func GetDevices() ([]Device, error) {
	var (
		devices []Device
		errs    []error
	)
	for _, list := range []func() ([]Device, error){malgoDeviceList, portAudioDeviceList} {
		d, err := list()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		devices = append(devices, d...)
	}
	if len(devices) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return devices, nil
}
