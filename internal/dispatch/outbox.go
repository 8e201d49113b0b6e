// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dispatch runs side effects (progress saves, violation reports) off
// the playback state machine, in submission order, on a single worker.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/metrics"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: outbox closed")

// ErrFull is returned by Submit when the queue is at capacity.
var ErrFull = errors.New("dispatch: outbox full")

const (
	DefaultCapacity = 256
	dropLogEvery    = 50
)

// Job is one unit of side-effect work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outbox is an ordered asynchronous queue with a single consumer.
type Outbox struct {
	name     string
	capacity int
	ctx      context.Context

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Job
	closed  bool
	running bool

	done    chan struct{}
	dropped atomic.Uint64
}

// New starts an outbox whose jobs run with ctx. Cancelling ctx does not stop
// the worker; Close does.
func New(ctx context.Context, name string, capacity int) *Outbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	o := &Outbox{
		name:     name,
		capacity: capacity,
		ctx:      context.WithoutCancel(ctx),
		done:     make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	go o.loop()
	return o
}

// Submit enqueues a job. It never blocks.
func (o *Outbox) Submit(name string, run func(ctx context.Context) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		metrics.IncOutboxDrop(o.name, "closed")
		return ErrClosed
	}
	if len(o.queue) >= o.capacity {
		metrics.IncOutboxDrop(o.name, "full")
		if n := o.dropped.Add(1); n%dropLogEvery == 1 {
			log.L().Warn().
				Str("outbox", o.name).
				Str("job", name).
				Uint64("dropped", n).
				Msg("outbox full, dropping job")
		}
		return ErrFull
	}
	o.queue = append(o.queue, Job{Name: name, Run: run})
	metrics.SetOutboxDepth(o.name, len(o.queue))
	o.cond.Signal()
	return nil
}

func (o *Outbox) loop() {
	defer close(o.done)
	for {
		o.mu.Lock()
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}
		if len(o.queue) == 0 && o.closed {
			o.mu.Unlock()
			return
		}
		job := o.queue[0]
		o.queue[0] = Job{}
		o.queue = o.queue[1:]
		o.running = true
		metrics.SetOutboxDepth(o.name, len(o.queue))
		o.mu.Unlock()

		o.run(job)

		o.mu.Lock()
		o.running = false
		o.cond.Broadcast()
		o.mu.Unlock()
	}
}

func (o *Outbox) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncOutboxFailure(o.name, job.Name)
			log.L().Error().
				Str("outbox", o.name).
				Str("job", job.Name).
				Interface("panic", r).
				Msg("outbox job panicked")
		}
	}()
	if err := job.Run(o.ctx); err != nil {
		metrics.IncOutboxFailure(o.name, job.Name)
		log.L().Warn().
			Err(err).
			Str("outbox", o.name).
			Str("job", job.Name).
			Msg("outbox job failed")
	}
}

// Flush blocks until every job submitted so far has run or ctx is done.
func (o *Outbox) Flush(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		o.mu.Lock()
		for (len(o.queue) > 0 || o.running) && ctx.Err() == nil {
			o.cond.Wait()
		}
		o.mu.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		// Wake the waiter so it observes ctx.Err and exits.
		o.mu.Lock()
		o.cond.Broadcast()
		o.mu.Unlock()
		<-idle
		return ctx.Err()
	}
}

// Close stops accepting jobs, runs what is queued and waits for the worker.
// It is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		o.cond.Broadcast()
	}
	o.mu.Unlock()
	<-o.done
}

// Len reports queued jobs.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
