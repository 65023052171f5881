package domain

// SettingsRepository is a secondary port that defines how to persist tool settings.
type SettingsRepository interface {
	Load() (Settings, error)
	Save(settings Settings) error
}

// Listener receives native property-change notifications for one device.
// Backends invoke it on their own goroutines.
type Listener func(PropertyChange)

// AudioSubsystem is the secondary port onto the OS audio subsystem.
// Handles are only meaningful to the implementation that produced them.
type AudioSubsystem interface {
	OutputDevices() ([]DeviceRef, error)
	DefaultOutputDevice() (DeviceHandle, error)
	SetDefaultOutputDevice(h DeviceHandle) error

	DeviceName(h DeviceHandle) (string, error)
	Volume(h DeviceHandle) (float64, error)
	SetVolume(h DeviceHandle, volume float64) error
	Mute(h DeviceHandle) (bool, error)
	SetMute(h DeviceHandle, muted bool) error
	CustomProperties(h DeviceHandle) ([]CustomProperty, error)
	SetCustomProperty(h DeviceHandle, key, value string) error

	// AddPropertyListener registers fn for volume and mute changes on h.
	// The returned func removes the registration.
	AddPropertyListener(h DeviceHandle, fn Listener) (remove func() error, err error)
}
