// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package clock abstracts wall-clock time and timers so that every periodic
// behaviour of a playback session can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Timer is a cancellable periodic or one-shot schedule.
// Stop is idempotent and never blocks on a running callback.
type Timer interface {
	Stop()
}

// Clock is the time source used by the player and its components.
type Clock interface {
	Now() time.Time
	// Every invokes fn every d until the returned timer is stopped.
	Every(d time.Duration, fn func()) Timer
	// AfterFunc invokes fn once after d unless stopped first.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Every(d time.Duration, fn func()) Timer {
	t := &realTicker{done: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return stdTimer{time.AfterFunc(d, fn)}
}

type stdTimer struct{ t *time.Timer }

func (s stdTimer) Stop() { s.t.Stop() }

type realTicker struct {
	once sync.Once
	done chan struct{}
}

func (t *realTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}
