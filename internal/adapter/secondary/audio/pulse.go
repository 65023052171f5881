package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/logging"
)

const (
	pulseLookupDest  = "org.PulseAudio1"
	pulseLookupPath  = dbus.ObjectPath("/org/pulseaudio/server_lookup1")
	pulseLookupAddr  = "org.PulseAudio.ServerLookup1.Address"
	pulseCorePath    = dbus.ObjectPath("/org/pulseaudio/core1")
	pulseCoreIface   = "org.PulseAudio.Core1"
	pulseDeviceIface = "org.PulseAudio.Core1.Device"
	propertiesSet    = "org.freedesktop.DBus.Properties.Set"

	signalVolumeUpdated = pulseDeviceIface + ".VolumeUpdated"
	signalMuteUpdated   = pulseDeviceIface + ".MuteUpdated"

	// PA_VOLUME_NORM
	pulseVolumeNorm uint32 = 0x10000
)

// PulseSubsystem implements domain.AudioSubsystem over PulseAudio's native D-Bus
// protocol (module-dbus-protocol). Sinks are output devices; the fallback sink is
// the default marker. PulseAudio has no writable custom device properties.
type PulseSubsystem struct {
	conn    *dbus.Conn
	core    dbus.BusObject
	volumes *domain.VolumeService
	logger  *slog.Logger

	mu        sync.Mutex
	listeners map[dbus.ObjectPath]map[int]domain.Listener
	nextID    int

	signals chan *dbus.Signal
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// DialPulse locates the PulseAudio D-Bus server (PULSE_DBUS_SERVER or the session
// bus lookup object) and connects to it peer-to-peer.
func DialPulse() (*PulseSubsystem, error) {
	addr := os.Getenv("PULSE_DBUS_SERVER")
	if addr == "" {
		bus, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("%w: connect session bus: %w", domain.ErrDeviceQuery, err)
		}
		v, err := bus.Object(pulseLookupDest, pulseLookupPath).GetProperty(pulseLookupAddr)
		_ = bus.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: lookup pulseaudio server (is module-dbus-protocol loaded?): %w", domain.ErrDeviceQuery, err)
		}
		s, ok := v.Value().(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: pulseaudio server lookup returned no address", domain.ErrDeviceQuery)
		}
		addr = s
	}

	conn, err := dbus.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrDeviceQuery, addr, err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: auth %s: %w", domain.ErrDeviceQuery, addr, err)
	}
	return newPulseSubsystem(conn), nil
}

func newPulseSubsystem(conn *dbus.Conn) *PulseSubsystem {
	p := &PulseSubsystem{
		conn:      conn,
		core:      conn.Object("", pulseCorePath),
		volumes:   domain.NewVolumeService(),
		logger:    logging.Logger().With("component", "pulse"),
		listeners: make(map[dbus.ObjectPath]map[int]domain.Listener),
		signals:   make(chan *dbus.Signal, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	conn.Signal(p.signals)
	go p.signalLoop()
	return p
}

// Close drops the connection and stops signal delivery.
func (p *PulseSubsystem) Close() error {
	var err error
	p.once.Do(func() {
		p.conn.RemoveSignal(p.signals)
		close(p.quit)
		<-p.done
		err = p.conn.Close()
	})
	return err
}

func (p *PulseSubsystem) OutputDevices() ([]domain.DeviceRef, error) {
	v, err := p.core.GetProperty(pulseCoreIface + ".Sinks")
	if err != nil {
		return nil, fmt.Errorf("%w: read sinks: %w", domain.ErrDeviceQuery, err)
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected sinks type %s", domain.ErrDeviceQuery, v.Signature())
	}
	refs := make([]domain.DeviceRef, 0, len(paths))
	for _, path := range paths {
		name, err := p.DeviceName(domain.DeviceHandle(path))
		if err != nil {
			if errors.Is(err, domain.ErrDeviceNotFound) {
				continue
			}
			return nil, err
		}
		refs = append(refs, domain.DeviceRef{Handle: domain.DeviceHandle(path), Name: name})
	}
	return refs, nil
}

func (p *PulseSubsystem) DefaultOutputDevice() (domain.DeviceHandle, error) {
	v, err := p.core.GetProperty(pulseCoreIface + ".FallbackSink")
	if err != nil {
		return "", fmt.Errorf("%w: no fallback sink: %w", domain.ErrDeviceQuery, err)
	}
	path, ok := v.Value().(dbus.ObjectPath)
	if !ok || path == "" {
		return "", fmt.Errorf("%w: no fallback sink", domain.ErrDeviceQuery)
	}
	return domain.DeviceHandle(path), nil
}

func (p *PulseSubsystem) SetDefaultOutputDevice(h domain.DeviceHandle) error {
	if _, err := p.DeviceName(h); err != nil {
		return err
	}
	call := p.core.Call(propertiesSet, 0, pulseCoreIface, "FallbackSink", dbus.MakeVariant(dbus.ObjectPath(h)))
	if call.Err != nil {
		return p.deviceErr(h, "set fallback sink", call.Err)
	}
	return nil
}

// DeviceName prefers the human-readable description over the sink's internal name.
func (p *PulseSubsystem) DeviceName(h domain.DeviceHandle) (string, error) {
	dev := p.device(h)
	if v, err := dev.GetProperty(pulseDeviceIface + ".PropertyList"); err == nil {
		if props, ok := v.Value().(map[string][]byte); ok {
			if desc := strings.TrimSpace(string(bytes.TrimRight(props["device.description"], "\x00"))); desc != "" {
				return desc, nil
			}
		}
	}
	v, err := dev.GetProperty(pulseDeviceIface + ".Name")
	if err != nil {
		return "", p.deviceErr(h, "read name", err)
	}
	return sinkName(h, v)
}

func sinkName(h domain.DeviceHandle, v dbus.Variant) (string, error) {
	name, ok := v.Value().(string)
	if !ok || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: sink %s has no usable name (%s)", domain.ErrDeviceQuery, h, v.Signature())
	}
	return name, nil
}

func (p *PulseSubsystem) Volume(h domain.DeviceHandle) (float64, error) {
	channels, err := p.channelVolumes(h)
	if err != nil {
		return 0, err
	}
	return p.volumes.FromFixed(channels, pulseVolumeNorm), nil
}

func (p *PulseSubsystem) SetVolume(h domain.DeviceHandle, volume float64) error {
	channels, err := p.channelVolumes(h)
	if err != nil {
		return err
	}
	next := p.volumes.ToFixed(volume, len(channels), pulseVolumeNorm)
	call := p.device(h).Call(propertiesSet, 0, pulseDeviceIface, "Volume", dbus.MakeVariant(next))
	if call.Err != nil {
		return p.deviceErr(h, "set volume", call.Err)
	}
	return nil
}

func (p *PulseSubsystem) Mute(h domain.DeviceHandle) (bool, error) {
	v, err := p.device(h).GetProperty(pulseDeviceIface + ".Mute")
	if err != nil {
		return false, p.deviceErr(h, "read mute", err)
	}
	muted, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: mute has type %s", domain.ErrPropertyUnsupported, v.Signature())
	}
	return muted, nil
}

func (p *PulseSubsystem) SetMute(h domain.DeviceHandle, muted bool) error {
	call := p.device(h).Call(propertiesSet, 0, pulseDeviceIface, "Mute", dbus.MakeVariant(muted))
	if call.Err != nil {
		return p.deviceErr(h, "set mute", call.Err)
	}
	return nil
}

// CustomProperties is always empty: the sink property list is read-only.
func (p *PulseSubsystem) CustomProperties(h domain.DeviceHandle) ([]domain.CustomProperty, error) {
	if _, err := p.DeviceName(h); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *PulseSubsystem) SetCustomProperty(h domain.DeviceHandle, key, value string) error {
	return fmt.Errorf("%w: pulseaudio sink properties are read-only", domain.ErrPropertyUnsupported)
}

func (p *PulseSubsystem) AddPropertyListener(h domain.DeviceHandle, fn domain.Listener) (func() error, error) {
	if _, err := p.DeviceName(h); err != nil {
		return nil, err
	}
	path := dbus.ObjectPath(h)

	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.listeners[path]
	if !ok {
		set = make(map[int]domain.Listener)
		p.listeners[path] = set
	}
	p.nextID++
	id := p.nextID
	set[id] = fn
	if !ok {
		if err := p.listenLocked(); err != nil {
			delete(set, id)
			delete(p.listeners, path)
			return nil, err
		}
	}

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners[path], id)
			if len(p.listeners[path]) == 0 {
				delete(p.listeners, path)
				err = p.listenLocked()
			}
		})
		return err
	}, nil
}

// listenLocked re-issues the signal subscription for the full set of watched sinks.
func (p *PulseSubsystem) listenLocked() error {
	paths := make([]dbus.ObjectPath, 0, len(p.listeners))
	for path := range p.listeners {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	for _, signal := range []string{signalVolumeUpdated, signalMuteUpdated} {
		var call *dbus.Call
		if len(paths) == 0 {
			call = p.core.Call(pulseCoreIface+".StopListeningForSignal", 0, signal)
		} else {
			call = p.core.Call(pulseCoreIface+".ListenForSignal", 0, signal, paths)
		}
		if call.Err != nil {
			return fmt.Errorf("%w: subscribe %s: %w", domain.ErrDeviceQuery, signal, call.Err)
		}
	}
	return nil
}

func (p *PulseSubsystem) signalLoop() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case sig, ok := <-p.signals:
			if !ok {
				return
			}
			p.dispatch(sig)
		}
	}
}

func (p *PulseSubsystem) dispatch(sig *dbus.Signal) {
	var kind domain.PropertyKind
	switch sig.Name {
	case signalVolumeUpdated:
		kind = domain.PropertyVolume
	case signalMuteUpdated:
		kind = domain.PropertyMute
	default:
		return
	}

	p.mu.Lock()
	fns := make([]domain.Listener, 0, len(p.listeners[sig.Path]))
	for _, fn := range p.listeners[sig.Path] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	change := domain.PropertyChange{Handle: domain.DeviceHandle(sig.Path), Property: kind}
	for _, fn := range fns {
		fn(change)
	}
}

func (p *PulseSubsystem) device(h domain.DeviceHandle) dbus.BusObject {
	return p.conn.Object("", dbus.ObjectPath(h))
}

func (p *PulseSubsystem) channelVolumes(h domain.DeviceHandle) ([]uint32, error) {
	v, err := p.device(h).GetProperty(pulseDeviceIface + ".Volume")
	if err != nil {
		return nil, p.deviceErr(h, "read volume", err)
	}
	channels, ok := v.Value().([]uint32)
	if !ok || len(channels) == 0 {
		return nil, fmt.Errorf("%w: %s has no volume channels", domain.ErrPropertyUnsupported, h)
	}
	return channels, nil
}

// deviceErr classifies a D-Bus error: a vanished object is ErrDeviceNotFound,
// anything else is a query failure.
func (p *PulseSubsystem) deviceErr(h domain.DeviceHandle, op string, err error) error {
	name := dbusErrorName(err)
	if strings.Contains(name, "NoSuchEntity") || strings.Contains(name, "UnknownObject") || strings.Contains(name, "UnknownMethod") {
		return fmt.Errorf("%w: %s (%s): %w", domain.ErrDeviceNotFound, h, op, err)
	}
	p.logger.Debug("dbus call failed", "handle", string(h), "op", op, "err", err)
	return fmt.Errorf("%w: %s (%s): %w", domain.ErrDeviceQuery, h, op, err)
}

func dbusErrorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) {
		return pe.Name
	}
	return ""
}
