package usecase

import (
	"audiodev-manager/internal/domain"
)

// AudioManagerUseCase is the primary port: the public command surface of the engine.
// Devices are addressed by name only.
type AudioManagerUseCase interface {
	ListOutputDeviceNames() ([]string, error)
	DefaultDeviceName() (string, error)
	SwitchDefaultDevice(name string) error
	Volume(name string) (float64, error)
	SetVolume(name string, volume float64) error
	MuteState(name string) (bool, error)
	SetMuteState(name string, muted bool) error
	SetVirtualDeviceCustomProperty(name, value string) error
	StartVolumeMonitoring(cb VolumeCallback) (domain.Subscription, error)
	StopVolumeMonitoring() error
	MonitoringSubscription() (domain.Subscription, bool)
}

// engineInteractor implements AudioManagerUseCase.
// It depends only on domain layer and the subsystem port.
type engineInteractor struct {
	registry *DeviceRegistry
	accessor *PropertyAccessor
	switcher *DefaultDeviceSwitcher
	monitor  *VolumeMonitor
}

// NewAudioManagerUseCase wires the engine over a live subsystem.
func NewAudioManagerUseCase(subsystem domain.AudioSubsystem) AudioManagerUseCase {
	registry := NewDeviceRegistry(subsystem)
	accessor := NewPropertyAccessor(subsystem)
	return &engineInteractor{
		registry: registry,
		accessor: accessor,
		switcher: NewDefaultDeviceSwitcher(subsystem),
		monitor:  NewVolumeMonitor(subsystem, registry, accessor),
	}
}

func (e *engineInteractor) ListOutputDeviceNames() ([]string, error) {
	return e.registry.ListOutputDeviceNames()
}

func (e *engineInteractor) DefaultDeviceName() (string, error) {
	return e.registry.DefaultDeviceName()
}

func (e *engineInteractor) SwitchDefaultDevice(name string) error {
	h, err := e.registry.Resolve(name)
	if err != nil {
		return err
	}
	return e.switcher.Switch(h)
}

func (e *engineInteractor) Volume(name string) (float64, error) {
	h, err := e.registry.Resolve(name)
	if err != nil {
		return 0, err
	}
	return e.accessor.Volume(h)
}

func (e *engineInteractor) SetVolume(name string, volume float64) error {
	h, err := e.registry.Resolve(name)
	if err != nil {
		return err
	}
	return e.accessor.SetVolume(h, volume)
}

func (e *engineInteractor) MuteState(name string) (bool, error) {
	h, err := e.registry.Resolve(name)
	if err != nil {
		return false, err
	}
	return e.accessor.Mute(h)
}

func (e *engineInteractor) SetMuteState(name string, muted bool) error {
	h, err := e.registry.Resolve(name)
	if err != nil {
		return err
	}
	return e.accessor.SetMute(h, muted)
}

func (e *engineInteractor) SetVirtualDeviceCustomProperty(name, value string) error {
	h, err := e.registry.Resolve(name)
	if err != nil {
		return err
	}
	return e.accessor.SetFirstCustomProperty(h, value)
}

func (e *engineInteractor) StartVolumeMonitoring(cb VolumeCallback) (domain.Subscription, error) {
	return e.monitor.Start(cb)
}

func (e *engineInteractor) StopVolumeMonitoring() error {
	return e.monitor.Stop()
}

func (e *engineInteractor) MonitoringSubscription() (domain.Subscription, bool) {
	return e.monitor.Subscription()
}
