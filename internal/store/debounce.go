package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Timer is the slice of tasks.Scheduler the debouncer needs.
type Timer interface {
	After(key string, d time.Duration, fn func())
	Cancel(key string)
}

const flushTaskKey = "store:flush"

// Debouncer coalesces writes to a KV. Each Set/Delete (re)arms a single
// flush after the configured delay; only the last value per key is written.
// Flush failures are logged and not retried.
type Debouncer struct {
	kv    KV
	timer Timer
	delay func() time.Duration

	mu      sync.Mutex
	pending map[string][]byte // nil value = delete
	flushMu sync.Mutex
}

// NewDebouncer creates a debouncer. delay is read on every write so config
// reloads apply.
func NewDebouncer(kv KV, timer Timer, delay func() time.Duration) *Debouncer {
	return &Debouncer{
		kv:      kv,
		timer:   timer,
		delay:   delay,
		pending: make(map[string][]byte),
	}
}

// Set schedules key=value.
func (d *Debouncer) Set(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	d.mu.Lock()
	d.pending[key] = value
	d.mu.Unlock()
	d.arm()
}

// Delete schedules removal of key.
func (d *Debouncer) Delete(key string) {
	d.mu.Lock()
	d.pending[key] = nil
	d.mu.Unlock()
	d.arm()
}

// Pending returns how many keys await a flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) arm() {
	d.timer.After(flushTaskKey, d.delay(), func() {
		if err := d.Flush(context.Background()); err != nil {
			slog.Warn("store flush failed", "error", err)
		}
	})
}

// Flush writes every pending change now. It returns the first error but
// attempts every key; failed keys are dropped.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	batch := d.pending
	d.pending = make(map[string][]byte)
	d.mu.Unlock()

	var firstErr error
	for key, value := range batch {
		var err error
		if value == nil {
			err = d.kv.Delete(ctx, key)
		} else {
			err = d.kv.Set(ctx, key, value)
		}
		if err != nil {
			slog.Warn("store write failed", "key", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close cancels the pending timer and flushes synchronously.
func (d *Debouncer) Close(ctx context.Context) error {
	d.timer.Cancel(flushTaskKey)
	return d.Flush(ctx)
}
