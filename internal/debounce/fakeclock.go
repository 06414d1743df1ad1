package debounce

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock. Due tasks run synchronously on the
// goroutine calling Advance, in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFakeClock returns a FakeClock at offset zero.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d and runs every task that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	kept := c.pending[:0]
	for _, t := range c.pending {
		switch {
		case t.stopped:
		case t.at <= c.now:
			t.stopped = true
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	c.pending = kept
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.f()
	}
}

// Waiting returns the number of timers that are armed and not yet due.
func (c *FakeClock) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}
