package dcgan_go

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidDevice Requested compute device is malformed or not available. Fatal, never retried
	ErrInvalidDevice = errors.New("invalid compute device")

	deviceRegexp = regexp.MustCompile(`^(?:/device:)?([A-Za-z]+):(\d+)$`)
)

// DeviceKind Kind of compute device
type DeviceKind string

const (
	DeviceCPU = DeviceKind("CPU")
	DeviceGPU = DeviceKind("GPU")
)

// Device Parsed compute device identifier
type Device struct {
	Kind  DeviceKind
	Index int
}

func (d Device) String() string {
	return fmt.Sprintf("%s:%d", d.Kind, d.Index)
}

// ParseDevice Parses identifiers like "CPU:0", "GPU:1" or "/device:CPU:0" and checks that the device is usable.
//
// Graphs are executed by gorgonia's CPU tape machine, so only CPU:0 is available.
// Anything else is reported as ErrInvalidDevice.
//
func ParseDevice(s string) (Device, error) {
	matches := deviceRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return Device{}, errors.Wrapf(ErrInvalidDevice, "can't parse device identifier '%s', expected format is KIND:INDEX (e.g. CPU:0)", s)
	}
	idx, err := strconv.Atoi(matches[2])
	if err != nil {
		return Device{}, errors.Wrapf(ErrInvalidDevice, "can't parse index of device '%s'", s)
	}
	d := Device{Kind: DeviceKind(strings.ToUpper(matches[1])), Index: idx}
	switch d.Kind {
	case DeviceCPU:
		if d.Index != 0 {
			return Device{}, errors.Wrapf(ErrInvalidDevice, "device %s is not available: only CPU:0 exists (%d logical cores are shared by it)", d, runtime.NumCPU())
		}
		return d, nil
	case DeviceGPU:
		return Device{}, errors.Wrapf(ErrInvalidDevice, "device %s is not available: binary is built without CUDA support", d)
	default:
		return Device{}, errors.Wrapf(ErrInvalidDevice, "unknown device kind '%s'", matches[1])
	}
}
