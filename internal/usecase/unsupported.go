package usecase

import "audiodev-manager/internal/domain"

// unsupportedEngine is selected on platforms with no audio backend.
// Every operation deterministically fails so callers can branch on capability.
type unsupportedEngine struct{}

// NewUnsupportedUseCase returns the stub engine.
func NewUnsupportedUseCase() AudioManagerUseCase {
	return unsupportedEngine{}
}

func (unsupportedEngine) ListOutputDeviceNames() ([]string, error) {
	return nil, domain.ErrPlatformUnsupported
}

func (unsupportedEngine) DefaultDeviceName() (string, error) {
	return "", domain.ErrPlatformUnsupported
}

func (unsupportedEngine) SwitchDefaultDevice(string) error {
	return domain.ErrPlatformUnsupported
}

func (unsupportedEngine) Volume(string) (float64, error) {
	return 0, domain.ErrPlatformUnsupported
}

func (unsupportedEngine) SetVolume(string, float64) error {
	return domain.ErrPlatformUnsupported
}

func (unsupportedEngine) MuteState(string) (bool, error) {
	return false, domain.ErrPlatformUnsupported
}

func (unsupportedEngine) SetMuteState(string, bool) error {
	return domain.ErrPlatformUnsupported
}

func (unsupportedEngine) SetVirtualDeviceCustomProperty(string, string) error {
	return domain.ErrPlatformUnsupported
}

func (unsupportedEngine) StartVolumeMonitoring(VolumeCallback) (domain.Subscription, error) {
	return domain.Subscription{}, domain.ErrPlatformUnsupported
}

func (unsupportedEngine) StopVolumeMonitoring() error {
	return domain.ErrPlatformUnsupported
}

func (unsupportedEngine) MonitoringSubscription() (domain.Subscription, bool) {
	return domain.Subscription{}, false
}
