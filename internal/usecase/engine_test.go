package usecase_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiodev-manager/internal/adapter/secondary/audio"
	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/usecase"
)

// newEngine wires the engine over a memory subsystem seeded with a typical desk:
// built-in speakers (default), an HDMI output without volume control and a virtual
// loopback device with two custom properties.
func newEngine(t *testing.T) (usecase.AudioManagerUseCase, *audio.MemorySubsystem) {
	t.Helper()
	sub := audio.NewMemorySubsystem()
	sub.AddDevice(audio.MemoryDevice{Name: "Speakers", Volume: 0.5})
	sub.AddDevice(audio.MemoryDevice{Name: "HDMI", NoVolumeControl: true})
	sub.AddDevice(audio.MemoryDevice{
		Name:   "Loopback",
		Volume: 1,
		Properties: []domain.CustomProperty{
			{Key: "target", Value: "Speakers"},
			{Key: "latency", Value: "10ms"},
		},
	})
	t.Cleanup(func() { _ = sub.Close() })
	return usecase.NewAudioManagerUseCase(sub), sub
}

func TestListedNamesResolve(t *testing.T) {
	engine, _ := newEngine(t)

	names, err := engine.ListOutputDeviceNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Speakers", "HDMI", "Loopback"}, names)

	for _, name := range names {
		_, err := engine.MuteState(name)
		assert.NotErrorIs(t, err, domain.ErrDeviceNotFound, "listed device %q must resolve", name)
	}
}

func TestDefaultDeviceName(t *testing.T) {
	engine, _ := newEngine(t)

	name, err := engine.DefaultDeviceName()
	require.NoError(t, err)
	assert.Equal(t, "Speakers", name)
}

func TestSetVolumeConverges(t *testing.T) {
	engine, _ := newEngine(t)
	volumes := domain.NewVolumeService()

	for _, v := range []float64{0, 0.33, 0.8, 1} {
		require.NoError(t, engine.SetVolume("Speakers", v))
		got, err := engine.Volume("Speakers")
		require.NoError(t, err)
		assert.True(t, volumes.Converged(v, got), "set %v, read %v", v, got)
	}
}

func TestSetVolumeRejectsOutOfRange(t *testing.T) {
	engine, _ := newEngine(t)

	for _, v := range []float64{-0.1, 1.5, math.NaN()} {
		assert.ErrorIs(t, engine.SetVolume("Speakers", v), domain.ErrInvalidVolume)
	}
	got, err := engine.Volume("Speakers")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got, "rejected writes leave the device untouched")
}

func TestMuteToggle(t *testing.T) {
	engine, _ := newEngine(t)

	before, err := engine.MuteState("Speakers")
	require.NoError(t, err)
	require.NoError(t, engine.SetMuteState("Speakers", !before))
	after, err := engine.MuteState("Speakers")
	require.NoError(t, err)
	assert.Equal(t, !before, after)
}

func TestScalarPropertyUnsupported(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.Volume("HDMI")
	assert.ErrorIs(t, err, domain.ErrPropertyUnsupported)
	assert.ErrorIs(t, engine.SetMuteState("HDMI", true), domain.ErrPropertyUnsupported)
}

func TestSwitchDefaultLeavesExactlyOneDefault(t *testing.T) {
	engine, sub := newEngine(t)

	require.NoError(t, engine.SwitchDefaultDevice("Loopback"))
	name, err := engine.DefaultDeviceName()
	require.NoError(t, err)
	assert.Equal(t, "Loopback", name)
	assert.Equal(t, 1, sub.DefaultChanges())

	// Switching to the current default changes nothing.
	require.NoError(t, engine.SwitchDefaultDevice("Loopback"))
	assert.Equal(t, 1, sub.DefaultChanges())

	require.NoError(t, engine.SwitchDefaultDevice("Speakers"))
	name, err = engine.DefaultDeviceName()
	require.NoError(t, err)
	assert.Equal(t, "Speakers", name)
}

func TestUnknownDeviceIsNotFound(t *testing.T) {
	engine, _ := newEngine(t)
	const ghost = "AirPods"

	assert.ErrorIs(t, engine.SwitchDefaultDevice(ghost), domain.ErrDeviceNotFound)
	_, err := engine.Volume(ghost)
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.ErrorIs(t, engine.SetVolume(ghost, 0.5), domain.ErrDeviceNotFound)
	_, err = engine.MuteState(ghost)
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.ErrorIs(t, engine.SetMuteState(ghost, true), domain.ErrDeviceNotFound)
	assert.ErrorIs(t, engine.SetVirtualDeviceCustomProperty(ghost, "x"), domain.ErrDeviceNotFound)
}

func TestUnpluggedDeviceIsNotFound(t *testing.T) {
	engine, sub := newEngine(t)

	refs, err := sub.OutputDevices()
	require.NoError(t, err)
	sub.RemoveDevice(refs[2].Handle)

	_, err = engine.Volume("Loopback")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestCustomPropertyWritesFirstSlotOnly(t *testing.T) {
	engine, sub := newEngine(t)

	require.NoError(t, engine.SetVirtualDeviceCustomProperty("Loopback", "HDMI"))

	refs, err := sub.OutputDevices()
	require.NoError(t, err)
	props, err := sub.CustomProperties(refs[2].Handle)
	require.NoError(t, err)
	assert.Equal(t, []domain.CustomProperty{
		{Key: "target", Value: "HDMI"},
		{Key: "latency", Value: "10ms"},
	}, props)
}

func TestCustomPropertyOnHardwareDevice(t *testing.T) {
	engine, _ := newEngine(t)
	assert.ErrorIs(t, engine.SetVirtualDeviceCustomProperty("Speakers", "x"), domain.ErrPropertyUnsupported)
}

func TestSubsystemOfflineIsQueryError(t *testing.T) {
	engine, sub := newEngine(t)
	sub.SetOffline(true)

	_, err := engine.ListOutputDeviceNames()
	assert.ErrorIs(t, err, domain.ErrDeviceQuery)
	_, err = engine.DefaultDeviceName()
	assert.ErrorIs(t, err, domain.ErrDeviceQuery)
	assert.ErrorIs(t, engine.SetVolume("Speakers", 0.2), domain.ErrDeviceQuery)
	_, err = engine.StartVolumeMonitoring(func(domain.VolumeChangeEvent) {})
	assert.ErrorIs(t, err, domain.ErrDeviceQuery)
}

func TestUnsupportedPlatformEngine(t *testing.T) {
	engine := usecase.NewUnsupportedUseCase()

	_, err := engine.ListOutputDeviceNames()
	assert.ErrorIs(t, err, domain.ErrPlatformUnsupported)
	_, err = engine.DefaultDeviceName()
	assert.ErrorIs(t, err, domain.ErrPlatformUnsupported)
	assert.ErrorIs(t, engine.SwitchDefaultDevice("x"), domain.ErrPlatformUnsupported)
	_, err = engine.Volume("x")
	assert.ErrorIs(t, err, domain.ErrPlatformUnsupported)
	assert.ErrorIs(t, engine.SetVolume("x", 0.5), domain.ErrPlatformUnsupported)
	_, err = engine.MuteState("x")
	assert.ErrorIs(t, err, domain.ErrPlatformUnsupported)
	assert.ErrorIs(t, engine.SetMuteState("x", true), domain.ErrPlatformUnsupported)
	assert.ErrorIs(t, engine.SetVirtualDeviceCustomProperty("x", "v"), domain.ErrPlatformUnsupported)
	_, err = engine.StartVolumeMonitoring(func(domain.VolumeChangeEvent) {})
	assert.ErrorIs(t, err, domain.ErrPlatformUnsupported)
	assert.ErrorIs(t, engine.StopVolumeMonitoring(), domain.ErrPlatformUnsupported)
	_, ok := engine.MonitoringSubscription()
	assert.False(t, ok)
}
