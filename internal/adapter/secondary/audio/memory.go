package audio

import (
	"fmt"
	"sort"
	"sync"

	"audiodev-manager/internal/domain"
)

// MemoryDevice describes a device hosted by MemorySubsystem.
type MemoryDevice struct {
	Name            string
	Volume          float64
	Muted           bool
	NoVolumeControl bool
	// Properties makes the device virtual. Order is preserved.
	Properties []domain.CustomProperty
}

type memoryDevice struct {
	MemoryDevice
	listeners map[int]domain.Listener
}

// MemorySubsystem implements domain.AudioSubsystem entirely in-process.
// It hosts software-defined devices and raises notifications asynchronously
// on its own goroutine, in the order changes were made.
type MemorySubsystem struct {
	volumes *domain.VolumeService

	mu             sync.Mutex
	devices        map[domain.DeviceHandle]*memoryDevice
	order          []domain.DeviceHandle
	defaultHandle  domain.DeviceHandle
	nextID         int
	nextListener   int
	offline        bool
	defaultChanges int

	pending []domain.PropertyChange
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewMemorySubsystem creates the subsystem and seeds it with specs.
func NewMemorySubsystem(specs ...domain.VirtualDeviceSpec) *MemorySubsystem {
	m := &MemorySubsystem{
		volumes: domain.NewVolumeService(),
		devices: make(map[domain.DeviceHandle]*memoryDevice),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, spec := range specs {
		h := m.AddDevice(deviceFromSpec(spec))
		if spec.Default {
			_ = m.SetDefaultOutputDevice(h)
		}
	}
	go m.deliverLoop()
	return m
}

func deviceFromSpec(spec domain.VirtualDeviceSpec) MemoryDevice {
	d := MemoryDevice{
		Name:   spec.Name,
		Volume: spec.Volume,
		Muted:  spec.Muted,
	}
	seen := make(map[string]bool, len(spec.Properties))
	for _, key := range spec.PropOrder {
		if v, ok := spec.Properties[key]; ok && !seen[key] {
			d.Properties = append(d.Properties, domain.CustomProperty{Key: key, Value: v})
			seen[key] = true
		}
	}
	rest := make([]string, 0, len(spec.Properties))
	for key := range spec.Properties {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		d.Properties = append(d.Properties, domain.CustomProperty{Key: key, Value: spec.Properties[key]})
	}
	return d
}

// AddDevice plugs in a device and returns its handle. The first device becomes default.
func (m *MemorySubsystem) AddDevice(d MemoryDevice) domain.DeviceHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	h := domain.DeviceHandle(fmt.Sprintf("mem:%d", m.nextID))
	d.Volume = m.volumes.Normalize(d.Volume)
	d.Properties = append([]domain.CustomProperty(nil), d.Properties...)
	m.devices[h] = &memoryDevice{MemoryDevice: d, listeners: make(map[int]domain.Listener)}
	m.order = append(m.order, h)
	if m.defaultHandle == "" {
		m.defaultHandle = h
	}
	return h
}

// RemoveDevice unplugs a device. Its handle becomes stale.
func (m *MemorySubsystem) RemoveDevice(h domain.DeviceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.devices, h)
	for i, o := range m.order {
		if o == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.defaultHandle == h {
		m.defaultHandle = ""
	}
}

// SetOffline makes every query fail as if the subsystem were unreachable.
func (m *MemorySubsystem) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// DefaultChanges counts writes that actually moved the default marker.
func (m *MemorySubsystem) DefaultChanges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultChanges
}

// ListenerCount returns the number of live registrations across all devices.
func (m *MemorySubsystem) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.devices {
		n += len(d.listeners)
	}
	return n
}

// Close stops the notification goroutine.
func (m *MemorySubsystem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	close(m.quit)
	<-m.done
	return nil
}

func (m *MemorySubsystem) OutputDevices() ([]domain.DeviceRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, fmt.Errorf("%w: memory subsystem offline", domain.ErrDeviceQuery)
	}
	refs := make([]domain.DeviceRef, 0, len(m.order))
	for _, h := range m.order {
		refs = append(refs, domain.DeviceRef{Handle: h, Name: m.devices[h].Name})
	}
	return refs, nil
}

func (m *MemorySubsystem) DefaultOutputDevice() (domain.DeviceHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return "", fmt.Errorf("%w: memory subsystem offline", domain.ErrDeviceQuery)
	}
	if m.defaultHandle == "" {
		return "", fmt.Errorf("%w: no default output device", domain.ErrDeviceQuery)
	}
	return m.defaultHandle, nil
}

func (m *MemorySubsystem) SetDefaultOutputDevice(h domain.DeviceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(h); err != nil {
		return err
	}
	if m.defaultHandle != h {
		m.defaultHandle = h
		m.defaultChanges++
	}
	return nil
}

func (m *MemorySubsystem) DeviceName(h domain.DeviceHandle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookup(h)
	if err != nil {
		return "", err
	}
	return d.Name, nil
}

func (m *MemorySubsystem) Volume(h domain.DeviceHandle) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookupScalar(h)
	if err != nil {
		return 0, err
	}
	return d.Volume, nil
}

func (m *MemorySubsystem) SetVolume(h domain.DeviceHandle, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookupScalar(h)
	if err != nil {
		return err
	}
	volume = m.volumes.Normalize(volume)
	if d.Volume == volume {
		return nil
	}
	d.Volume = volume
	m.raise(domain.PropertyChange{Handle: h, Property: domain.PropertyVolume})
	return nil
}

func (m *MemorySubsystem) Mute(h domain.DeviceHandle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookupScalar(h)
	if err != nil {
		return false, err
	}
	return d.Muted, nil
}

func (m *MemorySubsystem) SetMute(h domain.DeviceHandle, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookupScalar(h)
	if err != nil {
		return err
	}
	if d.Muted == muted {
		return nil
	}
	d.Muted = muted
	m.raise(domain.PropertyChange{Handle: h, Property: domain.PropertyMute})
	return nil
}

func (m *MemorySubsystem) CustomProperties(h domain.DeviceHandle) ([]domain.CustomProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	return append([]domain.CustomProperty(nil), d.Properties...), nil
}

func (m *MemorySubsystem) SetCustomProperty(h domain.DeviceHandle, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookup(h)
	if err != nil {
		return err
	}
	for i := range d.Properties {
		if d.Properties[i].Key == key {
			d.Properties[i].Value = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no custom property %q", domain.ErrPropertyUnsupported, d.Name, key)
}

func (m *MemorySubsystem) AddPropertyListener(h domain.DeviceHandle, fn domain.Listener) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	m.nextListener++
	id := m.nextListener
	d.listeners[id] = fn

	var once sync.Once
	return func() error {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if d, ok := m.devices[h]; ok {
				delete(d.listeners, id)
			}
		})
		return nil
	}, nil
}

// lookup must be called with m.mu held.
func (m *MemorySubsystem) lookup(h domain.DeviceHandle) (*memoryDevice, error) {
	if m.offline {
		return nil, fmt.Errorf("%w: memory subsystem offline", domain.ErrDeviceQuery)
	}
	d, ok := m.devices[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %s", domain.ErrDeviceNotFound, h)
	}
	return d, nil
}

func (m *MemorySubsystem) lookupScalar(h domain.DeviceHandle) (*memoryDevice, error) {
	d, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	if d.NoVolumeControl {
		return nil, fmt.Errorf("%w: %s has no volume control", domain.ErrPropertyUnsupported, d.Name)
	}
	return d, nil
}

// raise must be called with m.mu held.
func (m *MemorySubsystem) raise(change domain.PropertyChange) {
	if m.closed {
		return
	}
	m.pending = append(m.pending, change)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *MemorySubsystem) deliverLoop() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
		}

		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for _, change := range batch {
			for _, fn := range m.listenersFor(change.Handle) {
				fn(change)
			}
		}
	}
}

func (m *MemorySubsystem) listenersFor(h domain.DeviceHandle) []domain.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[h]
	if !ok {
		return nil
	}
	fns := make([]domain.Listener, 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	return fns
}
