package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiodev-manager/internal/domain"
)

// fakeMac emulates SwitchAudioSource and osascript.
type fakeMac struct {
	mu       sync.Mutex
	devices  []string
	current  string
	volume   int
	muted    bool
	noVolume bool
	fail     bool
	scripts  []string
}

func (f *fakeMac) run(name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("exit status 1")
	}
	switch name {
	case "SwitchAudioSource":
		switch args[0] {
		case "-a":
			return []byte(strings.Join(f.devices, "\n") + "\n"), nil
		case "-c":
			return []byte(f.current + "\n"), nil
		case "-s":
			f.current = args[1]
			return []byte("output audio device set to \"" + args[1] + "\"\n"), nil
		}
	case "osascript":
		script := args[1]
		f.scripts = append(f.scripts, script)
		switch {
		case script == "output volume of (get volume settings)":
			if f.noVolume {
				return []byte(missingValue + "\n"), nil
			}
			return []byte(strconv.Itoa(f.volume) + "\n"), nil
		case script == "output muted of (get volume settings)":
			if f.noVolume {
				return []byte(missingValue + "\n"), nil
			}
			return []byte(strconv.FormatBool(f.muted) + "\n"), nil
		case strings.HasPrefix(script, "set volume output volume "):
			n, err := strconv.Atoi(strings.TrimPrefix(script, "set volume output volume "))
			if err != nil {
				return nil, err
			}
			f.volume = n
			return nil, nil
		case strings.HasPrefix(script, "set volume output muted "):
			f.muted = strings.HasSuffix(script, "true")
			return nil, nil
		}
	}
	return nil, fmt.Errorf("unexpected command %s %v", name, args)
}

func (f *fakeMac) set(fn func(*fakeMac)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newFakeMac() *fakeMac {
	return &fakeMac{
		devices: []string{"MacBook Pro Speakers", "External Headphones", "BlackHole 2ch"},
		current: "MacBook Pro Speakers",
		volume:  40,
	}
}

func TestAppleScriptEnumerationAndSwitch(t *testing.T) {
	mac := newFakeMac()
	a := NewAppleScriptSubsystem(mac.run, 0)
	t.Cleanup(func() { _ = a.Close() })

	refs, err := a.OutputDevices()
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, domain.DeviceHandle("External Headphones"), refs[1].Handle)
	assert.Equal(t, "External Headphones", refs[1].Name)

	require.NoError(t, a.SetDefaultOutputDevice("BlackHole 2ch"))
	def, err := a.DefaultOutputDevice()
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceHandle("BlackHole 2ch"), def)

	assert.ErrorIs(t, a.SetDefaultOutputDevice("AirPods"), domain.ErrDeviceNotFound)
}

func TestAppleScriptVolumeAndMute(t *testing.T) {
	mac := newFakeMac()
	a := NewAppleScriptSubsystem(mac.run, 0)
	t.Cleanup(func() { _ = a.Close() })

	v, err := a.Volume("MacBook Pro Speakers")
	require.NoError(t, err)
	assert.Equal(t, 0.4, v)

	require.NoError(t, a.SetVolume("MacBook Pro Speakers", 0.75))
	assert.Contains(t, mac.scripts, "set volume output volume 75")

	require.NoError(t, a.SetMute("MacBook Pro Speakers", true))
	muted, err := a.Mute("MacBook Pro Speakers")
	require.NoError(t, err)
	assert.True(t, muted)

	_, err = a.Volume("External Headphones")
	assert.ErrorIs(t, err, domain.ErrPropertyUnsupported, "only the default output is scriptable")

	mac.set(func(f *fakeMac) { f.noVolume = true })
	_, err = a.Volume("MacBook Pro Speakers")
	assert.ErrorIs(t, err, domain.ErrPropertyUnsupported)

	mac.set(func(f *fakeMac) { f.fail = true })
	_, err = a.OutputDevices()
	assert.ErrorIs(t, err, domain.ErrDeviceQuery)
}

func TestAppleScriptCustomPropertiesUnsupported(t *testing.T) {
	a := NewAppleScriptSubsystem(newFakeMac().run, 0)
	t.Cleanup(func() { _ = a.Close() })

	props, err := a.CustomProperties("BlackHole 2ch")
	require.NoError(t, err)
	assert.Empty(t, props)
	assert.ErrorIs(t, a.SetCustomProperty("BlackHole 2ch", "k", "v"), domain.ErrPropertyUnsupported)
}

func TestAppleScriptPollRaisesChanges(t *testing.T) {
	mac := newFakeMac()
	a := NewAppleScriptSubsystem(mac.run, 10*time.Millisecond)
	t.Cleanup(func() { _ = a.Close() })

	rec := &changeRecorder{}
	remove, err := a.AddPropertyListener("MacBook Pro Speakers", rec.listen)
	require.NoError(t, err)

	// The first sample only establishes the baseline.
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, ok := a.last["MacBook Pro Speakers"]
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.snapshot())

	mac.set(func(f *fakeMac) { f.volume = 55 })
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.PropertyVolume, rec.snapshot()[0].Property)

	mac.set(func(f *fakeMac) { f.muted = true })
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.PropertyMute, rec.snapshot()[1].Property)

	require.NoError(t, remove())
	a.mu.Lock()
	polling := a.cancel != nil
	a.mu.Unlock()
	assert.False(t, polling, "poll loop stops with the last listener")
}

func TestAppleScriptListenerUnknownDevice(t *testing.T) {
	a := NewAppleScriptSubsystem(newFakeMac().run, 0)
	t.Cleanup(func() { _ = a.Close() })

	_, err := a.AddPropertyListener("AirPods", func(domain.PropertyChange) {})
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}
