// Package schedtest provides a manual clock and a synchronous runner for
// driving the scheduler deterministically in tests.
package schedtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"nightbot/internal/task/engine"
)

// Clock is a manual clock. Timers fire only from Advance or Set, on the
// calling goroutine, in due order, with Now equal to their due time.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*timer
}

type timer struct {
	id   uint64
	when time.Time
	f    func()
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now, timers: map[uint64]*timer{}}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{id: c.seq, when: c.now.Add(max(d, 0)), f: f}
	c.timers[t.id] = t
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.timers[t.id]; !ok {
			return false
		}
		delete(c.timers, t.id)
		return true
	}
}

// Advance moves the clock forward by d, firing every timer that comes due,
// including timers armed by callbacks along the way.
func (c *Clock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to target. Moving backwards fires nothing.
func (c *Clock) Set(target time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		next.f()
	}
}

// Pending returns the due times of armed timers in order.
func (c *Clock) Pending() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.when)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *Clock) nextDueLocked(target time.Time) *timer {
	var best *timer
	for _, t := range c.timers {
		if t.when.After(target) {
			continue
		}
		if best == nil || t.when.Before(best.when) || (t.when.Equal(best.when) && t.id < best.id) {
			best = t
		}
	}
	return best
}

// Runner runs enqueued tasks inline and remembers them.
type Runner struct {
	mu    sync.Mutex
	tasks []engine.Task
	errs  []error

	// Err, when set, is returned by Enqueue without running the task.
	Err error
}

func (r *Runner) Enqueue(t engine.Task) error {
	if r.Err != nil {
		return r.Err
	}
	err := t.Run(context.Background())
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	return nil
}

// Tasks returns the tasks run so far.
func (r *Runner) Tasks() []engine.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Task(nil), r.tasks...)
}

// Names returns the names of tasks run so far.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Name
	}
	return out
}

// Errs returns the result of each task run so far.
func (r *Runner) Errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
