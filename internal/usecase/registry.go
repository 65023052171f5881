package usecase

import (
	"errors"
	"fmt"

	"audiodev-manager/internal/domain"
)

// DeviceRegistry answers "which output devices exist right now".
// Nothing is cached: every call queries the subsystem once.
type DeviceRegistry struct {
	subsystem domain.AudioSubsystem
}

// NewDeviceRegistry creates a registry over subsystem.
func NewDeviceRegistry(subsystem domain.AudioSubsystem) *DeviceRegistry {
	return &DeviceRegistry{subsystem: subsystem}
}

// OutputDevices returns handle/name pairs in OS enumeration order.
func (r *DeviceRegistry) OutputDevices() ([]domain.DeviceRef, error) {
	refs, err := r.subsystem.OutputDevices()
	if err != nil {
		return nil, queryError("list output devices", err)
	}
	return refs, nil
}

// ListOutputDeviceNames returns the names of all present output devices.
func (r *DeviceRegistry) ListOutputDeviceNames() ([]string, error) {
	refs, err := r.OutputDevices()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names, nil
}

// DefaultDeviceName returns the name of the current default output device.
// A missing default is a platform anomaly and reported as ErrDeviceQuery.
func (r *DeviceRegistry) DefaultDeviceName() (string, error) {
	h, err := r.subsystem.DefaultOutputDevice()
	if err != nil {
		return "", queryError("get default output device", err)
	}
	name, err := r.subsystem.DeviceName(h)
	if err != nil {
		// The default vanished between the two queries.
		if errors.Is(err, domain.ErrDeviceNotFound) {
			return "", fmt.Errorf("%w: default output device disappeared", domain.ErrDeviceQuery)
		}
		return "", queryError("get default output device name", err)
	}
	return name, nil
}

// Resolve looks up the live handle for name.
func (r *DeviceRegistry) Resolve(name string) (domain.DeviceHandle, error) {
	refs, err := r.OutputDevices()
	if err != nil {
		return "", err
	}
	for _, ref := range refs {
		if ref.Name == name {
			return ref.Handle, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrDeviceNotFound, name)
}

// queryError makes sure registry failures surface as ErrDeviceQuery while keeping
// the platform sentinel intact for callers that branch on capability.
func queryError(op string, err error) error {
	if errors.Is(err, domain.ErrDeviceQuery) || errors.Is(err, domain.ErrPlatformUnsupported) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrDeviceQuery, err)
}
