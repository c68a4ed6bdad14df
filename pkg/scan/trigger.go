package scan

import (
	"sync"
	"time"
)

// Trigger is the host's deferred-callback primitive. The scheduler asks it to
// run the tick callback once after a delay and to drop pending runs.
type Trigger interface {
	ScheduleOnce(d time.Duration)
	Pending() bool
	CancelAll() int
}

// TimerTrigger runs fn on time.AfterFunc timers inside the current process.
type TimerTrigger struct {
	fn func()

	mu     sync.Mutex
	next   uint64
	timers map[uint64]*time.Timer
}

func NewTimerTrigger(fn func()) *TimerTrigger {
	return &TimerTrigger{fn: fn, timers: make(map[uint64]*time.Timer)}
}

func (t *TimerTrigger) ScheduleOnce(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.timers[id] = time.AfterFunc(d, func() {
		t.mu.Lock()
		_, live := t.timers[id]
		delete(t.timers, id)
		t.mu.Unlock()
		if live {
			t.fn()
		}
	})
}

func (t *TimerTrigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers) > 0
}

// CancelAll stops every pending timer and returns how many were dropped.
func (t *TimerTrigger) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
		n++
	}
	return n
}

// NoopTrigger never runs anything. Ticks are then driven by hand, for example
// from the CLI.
type NoopTrigger struct{}

func (NoopTrigger) ScheduleOnce(time.Duration) {}
func (NoopTrigger) Pending() bool              { return false }
func (NoopTrigger) CancelAll() int             { return 0 }
