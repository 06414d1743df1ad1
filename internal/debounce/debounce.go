// Package debounce coalesces rapid events per key into a single delayed task.
//
// Arming a key that already has a timer replaces it (debounce, not throttle).
// Tasks read whatever state they need when they run, so edits made during the
// delay are never lost.
package debounce

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// Clock schedules f to run after d on its own goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

type slot struct {
	timer Timer
	gen   uint64
}

// Debouncer maps composite keys to cancellable delayed tasks.
// It is safe for concurrent use.
type Debouncer struct {
	mu      sync.Mutex
	clock   Clock
	slots   map[string]slot
	gen     uint64
	stopped bool
}

// New returns a Debouncer using clock, or the real clock when nil.
func New(clock Clock) *Debouncer {
	if clock == nil {
		clock = RealClock
	}
	return &Debouncer{clock: clock, slots: make(map[string]slot)}
}

// Arm schedules fn under key after delay, replacing any timer already armed
// for key. Arm is a no-op once the debouncer is stopped.
func (d *Debouncer) Arm(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if s, ok := d.slots[key]; ok {
		s.timer.Stop()
	}
	d.gen++
	gen := d.gen
	t := d.clock.AfterFunc(delay, func() { d.fire(key, gen, fn) })
	d.slots[key] = slot{timer: t, gen: gen}
}

// fire runs fn only if the slot still belongs to this arming. A timer that
// already fired when Stop was called must not run a replaced task.
func (d *Debouncer) fire(key string, gen uint64, fn func()) {
	d.mu.Lock()
	s, ok := d.slots[key]
	if !ok || s.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.slots, key)
	d.mu.Unlock()

	fn()
}

// Cancel drops the timer for key. It reports whether one was armed.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[key]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(d.slots, key)
	return true
}

// CancelMatching drops every timer whose key satisfies match and returns how
// many were dropped.
func (d *Debouncer) CancelMatching(match func(key string) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for k, s := range d.slots {
		if match(k) {
			s.timer.Stop()
			delete(d.slots, k)
			n++
		}
	}
	return n
}

// Pending reports whether a timer is armed for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[key]
	return ok
}

// Len returns the number of armed timers.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}

// Stop cancels every armed timer and disables further arming.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, s := range d.slots {
		s.timer.Stop()
		delete(d.slots, k)
	}
	d.stopped = true
}
