// Package debounce collapses bursts of calls into a single delayed action.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiescence window used when none is configured.
const DefaultDelay = time.Second

// Debouncer runs the most recently scheduled action once the delay has
// passed without another call. Only one action is pending at a time.
//
// An action that has started is never interrupted; later calls only affect
// what runs next.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	token    uint64
	disposed bool
}

// New returns a Debouncer with the given delay. A non-positive delay
// selects DefaultDelay.
func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Debounce schedules action, superseding any pending one.
// It is a no-op after Dispose.
func (d *Debouncer) Debounce(action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}
	d.token++
	token := d.token
	if d.timer != nil {
		d.timer.Stop()
	}
	// Stop may lose the race with an already-fired timer; the token check
	// keeps a superseded callback from running.
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.disposed || d.token != token {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		action()
	})
}

// Cancel drops the pending action, if any. The debouncer stays usable.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Dispose cancels the pending action and rejects future ones. Idempotent.
func (d *Debouncer) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.disposed = true
}

func (d *Debouncer) cancelLocked() {
	d.token++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether an action is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Delay returns the quiescence window.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}
