package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/querydeck/internal/log"
)

// DefaultQuietInterval is how long writes must stop before a flush fires.
const DefaultQuietInterval = 500 * time.Millisecond

// Updater is the write half of the store, extracted so the debouncer can be
// tested without SQLite.
type Updater interface {
	Update(ctx context.Context, key string, value any) error
}

// Debounced is a timer-coalescing write queue. Put accumulates the latest
// value per key; a flush runs after the quiet interval, and every new Put
// reschedules it. Bursts of writes to the same key collapse into a single
// persisted write of the final value.
//
// Flushing is fire-and-forget: a failed write is logged, never surfaced to
// the caller that queued it.
type Debounced struct {
	store  Updater
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]any
	timer   *time.Timer
	seq     uint64
	closed  bool
}

// NewDebounced creates a debounced writer over store. A non-positive delay
// falls back to DefaultQuietInterval.
func NewDebounced(store Updater, delay time.Duration) *Debounced {
	if delay <= 0 {
		delay = DefaultQuietInterval
	}
	return &Debounced{
		store:   store,
		delay:   delay,
		logger:  log.WithComponent("state"),
		pending: make(map[string]any),
	}
}

// Put queues value under key and (re)schedules the flush timer.
func (d *Debounced) Put(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn("write after close dropped", "key", key)
		return
	}

	d.pending[key] = value
	d.seq++
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A newer Put rescheduled; let its timer do the work.
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		batch := d.takeLocked()
		d.mu.Unlock()
		d.write(batch)
	})
}

// Flush synchronously drains everything pending, cancelling any scheduled
// timer flush.
func (d *Debounced) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++ // invalidate in-flight timer callbacks
	batch := d.takeLocked()
	d.mu.Unlock()
	d.write(batch)
}

// Close flushes and rejects further writes.
func (d *Debounced) Close() {
	d.Flush()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Debounced) takeLocked() map[string]any {
	if len(d.pending) == 0 {
		return nil
	}
	batch := d.pending
	d.pending = make(map[string]any)
	return batch
}

func (d *Debounced) write(batch map[string]any) {
	for key, value := range batch {
		if err := d.store.Update(context.Background(), key, value); err != nil {
			d.logger.Error("debounced write failed", "key", key, "error", err)
		}
	}
}
