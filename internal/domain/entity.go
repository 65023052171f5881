package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceHandle is the backend-specific identity of an output device.
// It never leaves the engine; callers address devices by name.
type DeviceHandle string

// DeviceRef pairs a live handle with the device's human-readable name.
type DeviceRef struct {
	Handle DeviceHandle
	Name   string
}

// CustomProperty is one string-valued configuration slot of a virtual device.
type CustomProperty struct {
	Key   string
	Value string
}

// PropertyKind identifies which scalar property a native notification is about.
type PropertyKind int

const (
	PropertyVolume PropertyKind = iota
	PropertyMute
)

func (k PropertyKind) String() string {
	switch k {
	case PropertyVolume:
		return "volume"
	case PropertyMute:
		return "mute"
	default:
		return "unknown"
	}
}

// PropertyChange is what a backend hands to a registered listener.
type PropertyChange struct {
	Handle   DeviceHandle
	Property PropertyKind
}

// EventVolumeChange is the only event name the monitor produces.
const EventVolumeChange = "volumeChange"

// VolumeChangeEvent is delivered to the monitoring callback once per observed change.
type VolumeChangeEvent struct {
	EventName string  `json:"eventName"`
	Device    string  `json:"device"`
	Volume    float64 `json:"volume"`
}

// NewVolumeChangeEvent builds the event record for device at volume.
func NewVolumeChangeEvent(device string, volume float64) VolumeChangeEvent {
	return VolumeChangeEvent{
		EventName: EventVolumeChange,
		Device:    device,
		Volume:    volume,
	}
}

// Subscription identifies the single active monitoring session.
type Subscription struct {
	ID        uuid.UUID
	Devices   []string
	StartedAt time.Time
}

// Settings represents the tool configuration (backend choice, server options).
// Device state itself is never persisted.
type Settings struct {
	Backend        string
	Addr           string
	LogLevel       string
	PollInterval   time.Duration
	Advertise      bool
	ServiceName    string
	VirtualDevices []VirtualDeviceSpec
}

// VirtualDeviceSpec seeds a device into the in-process memory backend.
type VirtualDeviceSpec struct {
	Name       string            `mapstructure:"name" json:"name"`
	Volume     float64           `mapstructure:"volume" json:"volume"`
	Muted      bool              `mapstructure:"muted" json:"muted"`
	Default    bool              `mapstructure:"default" json:"default"`
	Properties map[string]string `mapstructure:"properties" json:"properties,omitempty"`
	PropOrder  []string          `mapstructure:"property_order" json:"property_order,omitempty"`
}

const (
	BackendAuto        = "auto"
	BackendPulse       = "pulse"
	BackendAppleScript = "applescript"
	BackendMemory      = "memory"
)

// Validate checks if the settings values are usable.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendAuto, BackendPulse, BackendAppleScript, BackendMemory:
	default:
		return ErrUnknownBackend
	}
	if s.PollInterval < 50*time.Millisecond {
		return ErrInvalidPollInterval
	}
	if s.Addr == "" {
		return ErrInvalidAddr
	}
	return nil
}

// DefaultSettings returns the default configuration values.
func DefaultSettings() Settings {
	return Settings{
		Backend:      BackendAuto,
		Addr:         "127.0.0.1:7070",
		LogLevel:     "warn",
		PollInterval: 500 * time.Millisecond,
		ServiceName:  "audiodev-manager",
	}
}
