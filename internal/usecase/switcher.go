package usecase

import (
	"errors"
	"fmt"

	"audiodev-manager/internal/domain"
)

// DefaultDeviceSwitcher changes which device the OS routes output to.
type DefaultDeviceSwitcher struct {
	subsystem domain.AudioSubsystem
}

// NewDefaultDeviceSwitcher creates a switcher over subsystem.
func NewDefaultDeviceSwitcher(subsystem domain.AudioSubsystem) *DefaultDeviceSwitcher {
	return &DefaultDeviceSwitcher{subsystem: subsystem}
}

// Switch marks h as the default output. Switching to the current default is a no-op.
func (s *DefaultDeviceSwitcher) Switch(h domain.DeviceHandle) error {
	current, err := s.subsystem.DefaultOutputDevice()
	if err == nil && current == h {
		// Still make sure h is alive; a stale handle is never a silent success.
		if _, err := s.subsystem.DeviceName(h); err != nil {
			return err
		}
		return nil
	}
	if err != nil && !errors.Is(err, domain.ErrDeviceQuery) {
		return err
	}
	if err := s.subsystem.SetDefaultOutputDevice(h); err != nil {
		return fmt.Errorf("switch default output: %w", err)
	}
	return nil
}
