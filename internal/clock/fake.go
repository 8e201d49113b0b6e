// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock. Callbacks run synchronously on the
// goroutine calling Advance, in deadline order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	f       *Fake
	id      int
	next    time.Time
	period  time.Duration
	fn      func()
	stopped bool
	oneShot bool
}

// NewFake returns a fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(d time.Duration, fn func()) Timer {
	return f.add(d, fn, false)
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.add(d, fn, true)
}

func (f *Fake) add(d time.Duration, fn func(), oneShot bool) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, id: f.seq, next: f.now.Add(d), period: d, fn: fn, oneShot: oneShot}
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Stop() {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.stopped = true
}

// Active reports how many timers are still scheduled.
func (f *Fake) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls inside the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		due := f.nextDueLocked(target)
		if due == nil {
			f.now = target
			f.compactLocked()
			f.mu.Unlock()
			return
		}
		f.now = due.next
		if due.oneShot {
			due.stopped = true
		} else {
			due.next = due.next.Add(due.period)
		}
		fn := due.fn
		f.mu.Unlock()

		fn()
	}
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var candidates []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped && !t.next.After(target) && t.period > 0 {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].next.Equal(candidates[j].next) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].next.Before(candidates[j].next)
	})
	return candidates[0]
}

func (f *Fake) compactLocked() {
	out := f.timers[:0]
	for _, t := range f.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	f.timers = out
}
