package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiodev-manager/internal/domain"
)

func TestHubDropsEventsForSlowClients(t *testing.T) {
	h := newEventHub()
	slow := h.subscribe()

	for i := 0; i < cap(slow)+10; i++ {
		h.publish(domain.NewVolumeChangeEvent("Speakers", 0.5))
	}
	assert.Len(t, slow, cap(slow), "publish never blocks on a full client")

	h.unsubscribe(slow)
	assert.Equal(t, 0, h.count())
	h.unsubscribe(slow) // second unsubscribe is harmless
}

func TestHubCloseAll(t *testing.T) {
	h := newEventHub()
	a := h.subscribe()
	h.closeAll()

	_, open := <-a
	assert.False(t, open)

	late := h.subscribe()
	_, open = <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
	assert.Equal(t, 0, h.count())
}

func TestHubReopenAfterClose(t *testing.T) {
	h := newEventHub()
	h.closeAll()
	h.reopen()

	ch := h.subscribe()
	h.publish(domain.NewVolumeChangeEvent("Speakers", 0.3))
	ev, open := <-ch
	require.True(t, open)
	assert.Equal(t, 0.3, ev.Volume)
}
