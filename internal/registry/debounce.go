package registry

import "time"

// DefaultDebounceInterval delays query application after the last keystroke.
const DefaultDebounceInterval = 300 * time.Millisecond

// Stopper cancels a pending timer.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules fn after d.
type AfterFunc func(d time.Duration, fn func()) Stopper

func timeAfterFunc(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
}

// debouncer runs only the last of a burst of triggers. It is not safe for concurrent use.
type debouncer struct {
	interval  time.Duration
	afterFunc AfterFunc
	timer     Stopper
}

func (d *debouncer) trigger(fn func()) {
	d.stop()
	d.timer = d.afterFunc(d.interval, fn)
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
