package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string // decoded device ID, e.g. ":1,0" on ALSA
	IsDefault bool
}

// backendForPlatform returns the malgo backend for the current platform
func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{backendForPlatform()}, malgo.ContextConfig{}, func(message string) {
		GetLogger().Debug("malgo", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// Devices lists the capture devices of the platform backend
func Devices() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	return describeDevices(infos), nil
}

func describeDevices(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// skip the null backend sink
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}

		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}

		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        id,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// SelectDevice picks the device matching source. An empty source, "default"
// or "sysdefault" selects the system default, falling back to the first
// device. Otherwise an exact name match wins over a decoded ID match, which
// wins over a partial name match.
func SelectDevice(devices []DeviceInfo, source string) (DeviceInfo, error) {
	if source == "" || source == "default" || source == "sysdefault" {
		for _, d := range devices {
			if d.IsDefault {
				return d, nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}

	for _, d := range devices {
		if d.Name == source {
			return d, nil
		}
	}

	for _, d := range devices {
		if d.ID == source {
			return d, nil
		}
	}

	for _, d := range devices {
		if source != "" && strings.Contains(d.Name, source) {
			return d, nil
		}
	}

	return DeviceInfo{}, errors.New(nil).
		Component(componentDevice).
		Category(errors.CategoryAudioSource).
		Context("device_name", source).
		Context("available_devices", len(devices)).
		Context("error", "no matching audio device found").
		Build()
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(bytes), "\x00"), nil
}
