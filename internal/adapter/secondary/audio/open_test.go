package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiodev-manager/internal/domain"
)

func TestOpenForUnsupportedPlatform(t *testing.T) {
	_, err := openFor("plan9", domain.DefaultSettings())
	assert.ErrorIs(t, err, domain.ErrPlatformUnsupported)
}

func TestOpenForMemory(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Backend = domain.BackendMemory
	settings.VirtualDevices = []domain.VirtualDeviceSpec{{Name: "Virtual Out", Volume: 0.3}}

	sub, err := openFor("plan9", settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	refs, err := sub.OutputDevices()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Virtual Out", refs[0].Name)
}

func TestOpenForAutoOnDarwin(t *testing.T) {
	sub, err := openFor("darwin", domain.DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	assert.IsType(t, &AppleScriptSubsystem{}, sub)
}

func TestOpenForUnknownBackend(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Backend = "alsa"
	_, err := openFor("linux", settings)
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}

func TestAutoBackend(t *testing.T) {
	assert.Equal(t, domain.BackendAppleScript, autoBackend("darwin"))
	assert.Equal(t, domain.BackendPulse, autoBackend("linux"))
	assert.Equal(t, "", autoBackend("windows"))
}
