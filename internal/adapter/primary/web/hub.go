package web

import (
	"sync"

	"audiodev-manager/internal/domain"
)

// eventHub fans the single monitoring stream out to every connected websocket.
// A client that cannot take an event immediately misses it; one slow browser
// never stalls the monitor's dispatch goroutine.
type eventHub struct {
	mu      sync.RWMutex
	clients map[chan domain.VolumeChangeEvent]struct{}
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[chan domain.VolumeChangeEvent]struct{})}
}

// subscribe registers a new client. The channel is closed on unsubscribe or closeAll.
func (h *eventHub) subscribe() chan domain.VolumeChangeEvent {
	ch := make(chan domain.VolumeChangeEvent, 32)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.clients[ch] = struct{}{}
	return ch
}

func (h *eventHub) unsubscribe(ch chan domain.VolumeChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *eventHub) publish(ev domain.VolumeChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *eventHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reopen lets clients subscribe again after closeAll.
func (h *eventHub) reopen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = false
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}
