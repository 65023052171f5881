package audio

import (
	"fmt"
	"io"
	"runtime"

	"audiodev-manager/internal/domain"
)

// Subsystem is a domain.AudioSubsystem that owns OS resources.
type Subsystem interface {
	domain.AudioSubsystem
	io.Closer
}

// Open picks the backend named in settings. "auto" resolves by GOOS; a platform
// without a backend yields domain.ErrPlatformUnsupported so the caller can fall back
// to the stub engine.
func Open(settings domain.Settings) (Subsystem, error) {
	return openFor(runtime.GOOS, settings)
}

func openFor(goos string, settings domain.Settings) (Subsystem, error) {
	backend := settings.Backend
	if backend == "" || backend == domain.BackendAuto {
		backend = autoBackend(goos)
	}

	switch backend {
	case domain.BackendMemory:
		return NewMemorySubsystem(settings.VirtualDevices...), nil
	case domain.BackendPulse:
		return DialPulse()
	case domain.BackendAppleScript:
		return NewAppleScriptSubsystem(nil, settings.PollInterval), nil
	case "":
		return nil, fmt.Errorf("%w (%s)", domain.ErrPlatformUnsupported, goos)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, backend)
	}
}

func autoBackend(goos string) string {
	switch goos {
	case "darwin":
		return domain.BackendAppleScript
	case "linux", "freebsd":
		return domain.BackendPulse
	default:
		return ""
	}
}
