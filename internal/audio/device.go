package audio

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Index     int    // Position in the backend's device list
	Name      string // Human-readable device name
	IsDefault bool   // Whether this is the default capture device
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	marker := ""
	if d.IsDefault {
		marker = " [DEFAULT]"
	}
	return fmt.Sprintf("%d: %s%s", d.Index, d.Name, marker)
}

// ListDevices returns all available capture devices
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault > 0,
		})
	}
	return devices, nil
}

// MatchDevice picks the device called name. An exact name wins over a
// case-insensitive substring match.
func MatchDevice(devices []DeviceInfo, name string) (DeviceInfo, error) {
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	search := strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), search) {
			return d, nil
		}
	}

	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return DeviceInfo{}, fmt.Errorf("capture device %q not found, available: %v", name, names)
}

func findCaptureDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		devices[i] = DeviceInfo{Index: i, Name: info.Name(), IsDefault: info.IsDefault > 0}
	}

	match, err := MatchDevice(devices, name)
	if err != nil {
		return nil, err
	}
	info := infos[match.Index]
	return &info, nil
}
