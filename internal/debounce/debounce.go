// Package debounce provides a keyed, resettable delayed call.
package debounce

import (
	"sync"
	"time"
)

type pending struct {
	timer *time.Timer
	fn    func()
	gen   uint64
}

// Debouncer runs the most recently scheduled function for a key once no new
// call for that key has arrived within the delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pending
}

// New creates a Debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pending),
	}
}

// Do schedules fn for key, replacing and restarting any pending call. It
// reports whether a pending call was replaced; a replaced call never runs.
func (d *Debouncer) Do(key string, fn func()) (replaced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		replaced = true
	}
	d.seq++
	gen := d.seq
	p := &pending{fn: fn, gen: gen}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
	d.pending[key] = p
	return replaced
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		// Superseded by a later Do, or cancelled.
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	p.fn()
}

// Cancel drops the pending call for key and reports whether one existed.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	return ok
}

// Flush runs every pending call now, in no particular order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		fns = append(fns, p.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
