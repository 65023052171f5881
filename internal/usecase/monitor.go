package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/logging"
)

// MonitorState is the VolumeMonitor lifecycle state.
type MonitorState int

const (
	MonitorIdle MonitorState = iota
	MonitorMonitoring
)

func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "idle"
	case MonitorMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// VolumeCallback receives volume-change events from the dispatch goroutine.
type VolumeCallback func(domain.VolumeChangeEvent)

// VolumeMonitor turns native property-change notifications into VolumeChangeEvents
// for a single subscriber.
//
// At most one session is active. Start while monitoring replaces the session: the old
// listener set is removed and its dispatcher drained before the new one is registered.
// Stop blocks until any in-flight callback returns, so the callback must not call Stop
// (or Start) synchronously.
//
// The tracked device set is fixed when Start runs; devices plugged in later are not seen
// until monitoring is restarted.
type VolumeMonitor struct {
	subsystem domain.AudioSubsystem
	registry  *DeviceRegistry
	accessor  *PropertyAccessor
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	session *monitorSession
}

type monitorSession struct {
	sub      domain.Subscription
	callback VolumeCallback
	names    map[domain.DeviceHandle]string
	removers []func() error

	mu     sync.Mutex
	queue  []domain.PropertyChange
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewVolumeMonitor creates an idle monitor.
func NewVolumeMonitor(subsystem domain.AudioSubsystem, registry *DeviceRegistry, accessor *PropertyAccessor) *VolumeMonitor {
	return &VolumeMonitor{
		subsystem: subsystem,
		registry:  registry,
		accessor:  accessor,
		logger:    logging.Logger().With("component", "monitor"),
		now:       time.Now,
	}
}

// State reports whether a session is active.
func (m *VolumeMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return MonitorIdle
	}
	return MonitorMonitoring
}

// Subscription returns the active session token, if any.
func (m *VolumeMonitor) Subscription() (domain.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.Subscription{}, false
	}
	return copySubscription(m.session.sub), true
}

// Start registers one listener per current output device and routes their
// notifications to cb. It returns without waiting for events.
func (m *VolumeMonitor) Start(cb VolumeCallback) (domain.Subscription, error) {
	if cb == nil {
		return domain.Subscription{}, domain.ErrNilCallback
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.session; prev != nil {
		m.session = nil
		if err := m.teardown(prev); err != nil {
			m.logger.Warn("previous subscription teardown incomplete", "subscription", prev.sub.ID, "err", err)
		}
		logging.Debugf("monitor: replaced subscription %s", prev.sub.ID)
	}

	refs, err := m.registry.OutputDevices()
	if err != nil {
		return domain.Subscription{}, err
	}

	sess := &monitorSession{
		sub: domain.Subscription{
			ID:        uuid.New(),
			StartedAt: m.now(),
		},
		callback: cb,
		names:    make(map[domain.DeviceHandle]string, len(refs)),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, ref := range refs {
		sess.names[ref.Handle] = ref.Name
	}

	for _, ref := range refs {
		remove, err := m.subsystem.AddPropertyListener(ref.Handle, sess.enqueue)
		if err != nil {
			if errors.Is(err, domain.ErrDeviceNotFound) {
				// Unplugged between enumeration and registration.
				m.logger.Warn("device vanished before listener registration", "device", ref.Name)
				sess.forget(ref.Handle)
				continue
			}
			sess.close()
			if rerr := sess.removeListeners(); rerr != nil {
				m.logger.Warn("rollback of partial registration failed", "err", rerr)
			}
			return domain.Subscription{}, fmt.Errorf("register listener for %q: %w", ref.Name, err)
		}
		sess.removers = append(sess.removers, remove)
		sess.sub.Devices = append(sess.sub.Devices, ref.Name)
	}

	go m.dispatch(sess)
	m.session = sess
	m.logger.Info("monitoring started", "subscription", sess.sub.ID, "devices", len(sess.sub.Devices))
	return copySubscription(sess.sub), nil
}

// Stop removes every listener and waits for the dispatcher to finish. No callback
// runs after Stop returns. Stopping an idle monitor is a no-op.
func (m *VolumeMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session
	if sess == nil {
		return nil
	}
	m.session = nil
	err := m.teardown(sess)
	m.logger.Info("monitoring stopped", "subscription", sess.sub.ID)
	return err
}

// teardown must be called with m.mu held.
func (m *VolumeMonitor) teardown(sess *monitorSession) error {
	sess.close()
	err := sess.removeListeners()
	close(sess.quit)
	<-sess.done
	return err
}

func (m *VolumeMonitor) dispatch(sess *monitorSession) {
	defer close(sess.done)
	for {
		select {
		case <-sess.quit:
			return
		case <-sess.wake:
		}
		for {
			change, ok := sess.next()
			if !ok {
				break
			}
			m.deliver(sess, change)
		}
	}
}

func (m *VolumeMonitor) deliver(sess *monitorSession, change domain.PropertyChange) {
	name := sess.names[change.Handle]
	volume, err := m.accessor.Volume(change.Handle)
	if err != nil {
		m.logger.Warn("dropping notification", "device", name, "property", change.Property.String(), "err", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("monitor: callback panicked on %q: %v", name, r)
		}
	}()
	logging.Tracef("monitor: %s change on %q -> %.3f", change.Property, name, volume)
	sess.callback(domain.NewVolumeChangeEvent(name, volume))
}

func (s *monitorSession) enqueue(change domain.PropertyChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, tracked := s.names[change.Handle]; !tracked {
		return
	}
	s.queue = append(s.queue, change)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *monitorSession) next() (domain.PropertyChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return domain.PropertyChange{}, false
	}
	change := s.queue[0]
	s.queue = s.queue[1:]
	return change, true
}

func (s *monitorSession) forget(h domain.DeviceHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, h)
}

func (s *monitorSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queue = nil
}

func (s *monitorSession) removeListeners() error {
	var errs []error
	for _, remove := range s.removers {
		if err := remove(); err != nil {
			errs = append(errs, err)
		}
	}
	s.removers = nil
	return errors.Join(errs...)
}

func copySubscription(sub domain.Subscription) domain.Subscription {
	sub.Devices = append([]string(nil), sub.Devices...)
	return sub
}
