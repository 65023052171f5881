package domain

import "errors"

var (
	// ErrDeviceQuery indicates that the OS audio subsystem could not be queried.
	ErrDeviceQuery = errors.New("audio device query failed")

	// ErrDeviceNotFound indicates that a name or handle no longer resolves to a live device.
	ErrDeviceNotFound = errors.New("audio device not found")

	// ErrPropertyUnsupported indicates that the device lacks the requested property.
	ErrPropertyUnsupported = errors.New("property not supported by device")

	// ErrPlatformUnsupported is returned by every operation on platforms without a backend.
	ErrPlatformUnsupported = errors.New("audio device control is not supported on this platform")

	// ErrInvalidVolume indicates that the volume value is outside [0.0, 1.0].
	ErrInvalidVolume = errors.New("volume must be between 0.0 and 1.0")

	// ErrNilCallback indicates that monitoring was started without a callback.
	ErrNilCallback = errors.New("monitoring callback is required")

	ErrUnknownBackend      = errors.New("backend must be one of auto, pulse, applescript, memory")
	ErrInvalidPollInterval = errors.New("poll interval must be at least 50ms")
	ErrInvalidAddr         = errors.New("addr is required")
)
