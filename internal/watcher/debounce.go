package watcher

import (
	"sync"
	"sync/atomic"
	"time"
)

// debouncer coalesces bursts of events into one firing per class. Each
// class has its own timer; an event arriving before the timer fires
// resets it, so a copy burst triggers exactly one reindex once the tree
// goes quiet.
type debouncer struct {
	window  time.Duration
	out     chan Class
	dropped atomic.Uint64

	mu      sync.Mutex
	timers  [numClasses]*time.Timer
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		out:    make(chan Class, int(numClasses)*2),
	}
}

// Add schedules (or extends) the firing for a class.
func (d *debouncer) Add(c Class) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t := d.timers[c]; t != nil {
		t.Reset(d.window)
		return
	}
	d.timers[c] = time.AfterFunc(d.window, func() { d.fire(c) })
}

func (d *debouncer) fire(c Class) {
	d.mu.Lock()
	d.timers[c] = nil
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}

	select {
	case d.out <- c:
	default:
		// A firing for this class is already queued; the pending run
		// will pick up the new state anyway.
		d.dropped.Add(1)
	}
}

// Output delivers one Class per firing.
func (d *debouncer) Output() <-chan Class {
	return d.out
}

// Stop cancels pending timers. Safe to call more than once.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for i, t := range d.timers {
		if t != nil {
			t.Stop()
			d.timers[i] = nil
		}
	}
}
