package usecase

import (
	"fmt"

	"audiodev-manager/internal/domain"
)

// PropertyAccessor reads and writes per-device scalar properties.
type PropertyAccessor struct {
	subsystem domain.AudioSubsystem
	volumes   *domain.VolumeService
}

// NewPropertyAccessor creates an accessor over subsystem.
func NewPropertyAccessor(subsystem domain.AudioSubsystem) *PropertyAccessor {
	return &PropertyAccessor{
		subsystem: subsystem,
		volumes:   domain.NewVolumeService(),
	}
}

// Volume returns the device volume in [0.0, 1.0].
func (p *PropertyAccessor) Volume(h domain.DeviceHandle) (float64, error) {
	v, err := p.subsystem.Volume(h)
	if err != nil {
		return 0, err
	}
	return p.volumes.Normalize(v), nil
}

// SetVolume writes volume through to the device. Out-of-range values are rejected,
// never clamped.
func (p *PropertyAccessor) SetVolume(h domain.DeviceHandle, volume float64) error {
	if err := p.volumes.Validate(volume); err != nil {
		return fmt.Errorf("%w (got %v)", err, volume)
	}
	return p.subsystem.SetVolume(h, volume)
}

// Mute returns the device mute flag.
func (p *PropertyAccessor) Mute(h domain.DeviceHandle) (bool, error) {
	return p.subsystem.Mute(h)
}

// SetMute writes the device mute flag.
func (p *PropertyAccessor) SetMute(h domain.DeviceHandle, muted bool) error {
	return p.subsystem.SetMute(h, muted)
}

// SetFirstCustomProperty overwrites the first custom property slot of a virtual device.
// Properties are never addressed by name from outside.
func (p *PropertyAccessor) SetFirstCustomProperty(h domain.DeviceHandle, value string) error {
	props, err := p.subsystem.CustomProperties(h)
	if err != nil {
		return err
	}
	if len(props) == 0 {
		return fmt.Errorf("%w: device exposes no custom properties", domain.ErrPropertyUnsupported)
	}
	return p.subsystem.SetCustomProperty(h, props[0].Key, value)
}
