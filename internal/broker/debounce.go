package broker

import "time"

type debounceState int

const (
	debounceIdle debounceState = iota
	debounceArmed
)

// Debouncer is a two-state machine, Idle or Armed(deadline). It holds no
// timer of its own; the owner asks for the deadline and reports the time.
type Debouncer struct {
	period   time.Duration
	state    debounceState
	deadline time.Time
}

func NewDebouncer(period time.Duration) *Debouncer {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &Debouncer{period: period}
}

// Seen records a signal at now. Idle and Armed both move to Armed with a
// fresh deadline, so at most one deadline is ever live.
func (d *Debouncer) Seen(now time.Time) {
	d.state = debounceArmed
	d.deadline = now.Add(d.period)
}

// Cancel drops any pending deadline.
func (d *Debouncer) Cancel() {
	d.state = debounceIdle
	d.deadline = time.Time{}
}

// Deadline returns the pending deadline while Armed.
func (d *Debouncer) Deadline() (time.Time, bool) {
	if d.state != debounceArmed {
		return time.Time{}, false
	}
	return d.deadline, true
}

// Fire reports whether the deadline has been reached at now. A successful
// fire returns the machine to Idle.
func (d *Debouncer) Fire(now time.Time) bool {
	if d.state != debounceArmed || now.Before(d.deadline) {
		return false
	}
	d.Cancel()
	return true
}

func (d *Debouncer) Armed() bool {
	return d.state == debounceArmed
}
