package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.PublishConsole("120 rows total")

	ev := <-ch
	assert.Equal(t, TypeConsoleMessage, ev.Type)
	assert.Contains(t, string(ev.Data), "120 rows total")
	assert.Equal(t, int64(1), ev.ID)
}

func TestSnapshotSince(t *testing.T) {
	h := NewHub(10)
	for i := 0; i < 5; i++ {
		h.Publish(TypeCommandDispatched, map[string]any{"n": i})
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].ID, "oldest first")

	tail := h.SnapshotSince(3)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].ID)
}

func TestRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(TypePanelConnected, nil)
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, int64(3), snap[0].ID)
	assert.Equal(t, int64(5), snap[2].ID)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; Publish must not stall.
	for i := 0; i < 300; i++ {
		h.Publish(TypeConsoleMessage, fmt.Sprintf("line %d", i))
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	cancel()
	assert.NotPanics(t, cancel)
	h.Publish(TypePanelClosed, nil)
}
