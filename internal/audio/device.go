package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/jeongseonghan/acoustic-modem/internal/audio/device"
)

// ListDevices returns all available audio devices.
func ListDevices() ([]device.Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var defaultIn, defaultOut string
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		defaultIn = d.Name
	}
	if d, err := portaudio.DefaultOutputDevice(); err == nil {
		defaultOut = d.Name
	}

	result := make([]device.Info, 0, len(devices))
	for _, d := range devices {
		result = append(result, device.Info{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         d.Name == defaultIn || d.Name == defaultOut,
		})
	}
	return result, nil
}

// HasInputDevice returns true if a default input device is available.
func HasInputDevice() bool {
	_, err := portaudio.DefaultInputDevice()
	return err == nil
}

// HasOutputDevice returns true if a default output device is available.
func HasOutputDevice() bool {
	_, err := portaudio.DefaultOutputDevice()
	return err == nil
}

// Devices lists this host's devices. PortAudio must be initialized.
func Devices() (device.Report, error) {
	devices, err := ListDevices()
	if err != nil {
		return device.Report{}, err
	}
	return device.Report{
		Devices:   devices,
		HasInput:  HasInputDevice(),
		HasOutput: HasOutputDevice(),
	}, nil
}
