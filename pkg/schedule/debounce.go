package schedule

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the minimum spacing between accepted triggers.
const DefaultDebounceWindow = 30 * time.Second

// Debouncer accepts a trigger at most once per window.
type Debouncer struct {
	Window time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewDebouncer creates a debouncer. A non-positive window uses the default.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{Window: window}
}

// Allow reports whether a trigger at now is accepted. When rejected it also
// returns how long until the next trigger would be accepted.
func (d *Debouncer) Allow(now time.Time) (bool, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.Window
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if !d.last.IsZero() {
		if elapsed := now.Sub(d.last); elapsed < window {
			return false, window - elapsed
		}
	}
	d.last = now
	return true, 0
}

// Reset forgets the last accepted trigger.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.last = time.Time{}
	d.mu.Unlock()
}
