package app

import (
	"fmt"
	"io"
	"os"

	"github.com/emmett/whispering/internal/audio"
)

// DeviceManager handles audio device selection and listing
type DeviceManager struct {
	out  io.Writer
	list func() ([]audio.DeviceInfo, error)
}

// NewDeviceManager creates a new DeviceManager printing to stdout
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{out: os.Stdout, list: audio.ListDevices}
}

// ListDevices lists all available audio input devices
func (dm *DeviceManager) ListDevices() error {
	fmt.Fprintln(dm.out, "Detecting audio input devices...")
	fmt.Fprintln(dm.out)

	devices, err := dm.list()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(dm.out, "No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Fprintf(dm.out, "Found %d capture device(s):\n\n", len(devices))
	for _, device := range devices {
		fmt.Fprintf(dm.out, "  %s\n", device)
	}
	fmt.Fprintln(dm.out)

	fmt.Fprintln(dm.out, "To use a specific device, set audio.device in the config file or run:")
	fmt.Fprintf(dm.out, "  WHISPERING_AUDIO_DEVICE=%q whispering\n", devices[0].Name)

	return nil
}

// SelectDevice resolves the configured device name. An empty name selects
// the default capture device.
func (dm *DeviceManager) SelectDevice(name string) (audio.DeviceInfo, error) {
	devices, err := dm.list()
	if err != nil {
		return audio.DeviceInfo{}, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return audio.DeviceInfo{}, fmt.Errorf("no audio capture devices found")
	}

	if name != "" {
		return audio.MatchDevice(devices, name)
	}

	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	return devices[0], nil
}
