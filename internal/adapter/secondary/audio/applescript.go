package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/logging"
)

// CommandRunner executes an external tool and returns its combined output.
type CommandRunner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w, output: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

const missingValue = "missing value"

// AppleScriptSubsystem implements domain.AudioSubsystem on macOS using command tools:
// SwitchAudioSource for enumeration and default switching, osascript for the
// default output's volume and mute. Other devices are not scriptable and report
// ErrPropertyUnsupported for scalar properties. Change notifications come from a
// poll loop that runs while any listener is registered.
type AppleScriptSubsystem struct {
	run      CommandRunner
	interval time.Duration
	volumes  *domain.VolumeService

	mu        sync.Mutex
	listeners map[domain.DeviceHandle]map[int]domain.Listener
	nextID    int
	last      map[domain.DeviceHandle]scalarState
	cancel    context.CancelFunc
	pollDone  chan struct{}
}

type scalarState struct {
	percent int
	muted   bool
}

// NewAppleScriptSubsystem creates the subsystem. A nil runner executes real commands.
func NewAppleScriptSubsystem(run CommandRunner, interval time.Duration) *AppleScriptSubsystem {
	if run == nil {
		run = execRunner
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &AppleScriptSubsystem{
		run:       run,
		interval:  interval,
		volumes:   domain.NewVolumeService(),
		listeners: make(map[domain.DeviceHandle]map[int]domain.Listener),
		last:      make(map[domain.DeviceHandle]scalarState),
	}
}

// Close stops the poll loop.
func (a *AppleScriptSubsystem) Close() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.pollDone
	a.cancel, a.pollDone = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (a *AppleScriptSubsystem) OutputDevices() ([]domain.DeviceRef, error) {
	out, err := a.run("SwitchAudioSource", "-a", "-t", "output")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	var refs []domain.DeviceRef
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		refs = append(refs, domain.DeviceRef{Handle: domain.DeviceHandle(name), Name: name})
	}
	return refs, nil
}

func (a *AppleScriptSubsystem) DefaultOutputDevice() (domain.DeviceHandle, error) {
	out, err := a.run("SwitchAudioSource", "-c", "-t", "output")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", fmt.Errorf("%w: no default output device", domain.ErrDeviceQuery)
	}
	return domain.DeviceHandle(name), nil
}

func (a *AppleScriptSubsystem) SetDefaultOutputDevice(h domain.DeviceHandle) error {
	if err := a.exists(h); err != nil {
		return err
	}
	if _, err := a.run("SwitchAudioSource", "-s", string(h), "-t", "output"); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	return nil
}

func (a *AppleScriptSubsystem) DeviceName(h domain.DeviceHandle) (string, error) {
	if err := a.exists(h); err != nil {
		return "", err
	}
	return string(h), nil
}

func (a *AppleScriptSubsystem) Volume(h domain.DeviceHandle) (float64, error) {
	if err := a.scriptable(h); err != nil {
		return 0, err
	}
	percent, err := a.readVolume()
	if err != nil {
		return 0, err
	}
	return a.volumes.FromPercent(percent), nil
}

func (a *AppleScriptSubsystem) SetVolume(h domain.DeviceHandle, volume float64) error {
	if err := a.scriptable(h); err != nil {
		return err
	}
	script := fmt.Sprintf("set volume output volume %d", a.volumes.ToPercent(volume))
	if _, err := a.run("osascript", "-e", script); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	return nil
}

func (a *AppleScriptSubsystem) Mute(h domain.DeviceHandle) (bool, error) {
	if err := a.scriptable(h); err != nil {
		return false, err
	}
	return a.readMuted()
}

func (a *AppleScriptSubsystem) SetMute(h domain.DeviceHandle, muted bool) error {
	if err := a.scriptable(h); err != nil {
		return err
	}
	if _, err := a.run("osascript", "-e", fmt.Sprintf("set volume output muted %t", muted)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	return nil
}

// CustomProperties is always empty: no command tool exposes driver properties.
func (a *AppleScriptSubsystem) CustomProperties(h domain.DeviceHandle) ([]domain.CustomProperty, error) {
	if err := a.exists(h); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *AppleScriptSubsystem) SetCustomProperty(h domain.DeviceHandle, key, value string) error {
	return fmt.Errorf("%w: custom properties are not scriptable", domain.ErrPropertyUnsupported)
}

func (a *AppleScriptSubsystem) AddPropertyListener(h domain.DeviceHandle, fn domain.Listener) (func() error, error) {
	if err := a.exists(h); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.listeners[h]
	if !ok {
		set = make(map[int]domain.Listener)
		a.listeners[h] = set
	}
	a.nextID++
	id := a.nextID
	set[id] = fn
	if a.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.pollDone = make(chan struct{})
		go a.poll(ctx, a.pollDone)
	}

	var once sync.Once
	return func() error {
		once.Do(func() { a.removeListener(h, id) })
		return nil
	}, nil
}

func (a *AppleScriptSubsystem) removeListener(h domain.DeviceHandle, id int) {
	a.mu.Lock()
	delete(a.listeners[h], id)
	if len(a.listeners[h]) == 0 {
		delete(a.listeners, h)
		delete(a.last, h)
	}
	var cancel context.CancelFunc
	var done chan struct{}
	if len(a.listeners) == 0 && a.cancel != nil {
		cancel, done = a.cancel, a.pollDone
		a.cancel, a.pollDone = nil, nil
	}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (a *AppleScriptSubsystem) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce()
		}
	}
}

// pollOnce samples the default output and raises a change for every scalar that
// moved since the previous sample of that device.
func (a *AppleScriptSubsystem) pollOnce() {
	h, err := a.DefaultOutputDevice()
	if err != nil {
		logging.Debugf("applescript: poll default device: %v", err)
		return
	}
	percent, err := a.readVolume()
	if err != nil {
		return
	}
	muted, err := a.readMuted()
	if err != nil {
		return
	}
	now := scalarState{percent: percent, muted: muted}

	a.mu.Lock()
	prev, seen := a.last[h]
	var fns []domain.Listener
	if set, ok := a.listeners[h]; ok {
		a.last[h] = now
		for _, fn := range set {
			fns = append(fns, fn)
		}
	}
	a.mu.Unlock()

	if !seen {
		return
	}
	var changes []domain.PropertyChange
	if prev.percent != now.percent {
		changes = append(changes, domain.PropertyChange{Handle: h, Property: domain.PropertyVolume})
	}
	if prev.muted != now.muted {
		changes = append(changes, domain.PropertyChange{Handle: h, Property: domain.PropertyMute})
	}
	for _, change := range changes {
		for _, fn := range fns {
			fn(change)
		}
	}
}

func (a *AppleScriptSubsystem) exists(h domain.DeviceHandle) error {
	refs, err := a.OutputDevices()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ref.Handle == h {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, h)
}

func (a *AppleScriptSubsystem) scriptable(h domain.DeviceHandle) error {
	if err := a.exists(h); err != nil {
		return err
	}
	current, err := a.DefaultOutputDevice()
	if err != nil {
		return err
	}
	if current != h {
		return fmt.Errorf("%w: only the default output (%s) is scriptable", domain.ErrPropertyUnsupported, current)
	}
	return nil
}

func (a *AppleScriptSubsystem) readVolume() (int, error) {
	out, err := a.run("osascript", "-e", "output volume of (get volume settings)")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	text := strings.TrimSpace(string(out))
	if text == missingValue {
		return 0, fmt.Errorf("%w: device has no volume control", domain.ErrPropertyUnsupported)
	}
	percent, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: parse volume %q: %w", domain.ErrDeviceQuery, text, err)
	}
	return percent, nil
}

func (a *AppleScriptSubsystem) readMuted() (bool, error) {
	out, err := a.run("osascript", "-e", "output muted of (get volume settings)")
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrDeviceQuery, err)
	}
	text := strings.TrimSpace(string(out))
	if text == missingValue {
		return false, fmt.Errorf("%w: device has no mute control", domain.ErrPropertyUnsupported)
	}
	muted, err := strconv.ParseBool(text)
	if err != nil {
		return false, fmt.Errorf("%w: parse mute %q: %w", domain.ErrDeviceQuery, text, err)
	}
	return muted, nil
}
