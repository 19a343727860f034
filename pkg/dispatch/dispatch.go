// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package dispatch implements the apteryx callback dispatcher (C5): a
// bounded worker pool that runs watcher invocations asynchronously,
// one FIFO lane per originator, while validators are always run
// synchronously by the caller (spec.md §4.4.1, §4.5).
package dispatch

import (
	"context"
	"log"
	"sync"
	"time"
)

// Originator identifies the caller that triggered a mutation: the RPC
// peer for remote callers, or a stable local identity for in-process
// callers (the statistics refresher, self-configuration writes).
// Watchers queued by the same originator's set fire in FIFO order;
// unrelated originators have no ordering relationship (spec.md §5).
type Originator string

// Mode selects who drains a originator's watcher backlog. Both modes
// share the same FIFO/ordering code (spec.md §9 "cooperative vs
// OS-thread callbacks").
type Mode int

const (
	// ModePooled runs a dedicated goroutine per active originator,
	// bounded by a global worker semaphore. This is the default.
	ModePooled Mode = iota
	// ModeExplicitDrain queues tasks but never runs them on its own;
	// the embedding host calls DrainOriginator itself.
	ModeExplicitDrain
)

type originatorMarkerKey struct{}

// WithReentrant marks ctx as already executing a dispatch for
// originator, so a nested operation can detect it is running inside
// its own triggering callback (spec.md §7 "Reentrancy faults").
func WithReentrant(ctx context.Context, o Originator) context.Context {
	return context.WithValue(ctx, originatorMarkerKey{}, o)
}

// IsReentrant reports whether ctx is already inside a dispatch for o.
func IsReentrant(ctx context.Context, o Originator) bool {
	v, _ := ctx.Value(originatorMarkerKey{}).(Originator)
	return v == o
}

// Task is one queued watcher invocation.
type Task func(ctx context.Context)

type lane struct {
	mu      sync.Mutex
	queue   []Task
	running bool
	pending sync.WaitGroup
}

// Dispatcher runs Tasks. The zero value is not usable; use New.
type Dispatcher struct {
	mode    Mode
	timeout time.Duration
	sem     chan struct{}
	logger  *log.Logger

	mu     sync.Mutex
	lanes  map[Originator]*lane
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the default 1s per-callback wall-clock budget
// (spec.md §4.5, §6).
func WithTimeout(d time.Duration) Option { return func(disp *Dispatcher) { disp.timeout = d } }

// WithWorkers overrides the default pool size of 8 (spec.md §4.5).
func WithWorkers(n int) Option {
	return func(disp *Dispatcher) {
		if n < 1 {
			n = 1
		}
		disp.sem = make(chan struct{}, n)
	}
}

// WithMode selects pooled vs explicit-drain dispatch.
func WithMode(m Mode) Option { return func(disp *Dispatcher) { disp.mode = m } }

// WithLogger overrides the default discard logger used to report
// timed-out callbacks.
func WithLogger(l *log.Logger) Option { return func(disp *Dispatcher) { disp.logger = l } }

// New returns a Dispatcher with an 8-worker pool and 1s timeout,
// matching spec.md §4.5's defaults, unless overridden.
func New(opts ...Option) *Dispatcher {
	disp := &Dispatcher{
		timeout: time.Second,
		sem:     make(chan struct{}, 8),
		logger:  log.New(discardWriter{}, "", 0),
		lanes:   make(map[Originator]*lane),
	}
	for _, o := range opts {
		o(disp)
	}
	return disp
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (d *Dispatcher) laneFor(o Originator) *lane {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lanes[o]
	if !ok {
		l = &lane{}
		d.lanes[o] = l
	}
	return l
}

// Enqueue queues fn on originator's FIFO lane. In ModePooled it is
// picked up by a per-originator worker goroutine as soon as one is
// free; in ModeExplicitDrain it waits for DrainOriginator.
func (d *Dispatcher) Enqueue(o Originator, fn Task) {
	l := d.laneFor(o)
	l.mu.Lock()
	l.pending.Add(1)
	l.queue = append(l.queue, fn)
	start := d.mode == ModePooled && !l.running
	if start {
		l.running = true
	}
	l.mu.Unlock()

	if start {
		go d.runLane(o, l)
	}
}

// runLane processes l's FIFO queue to exhaustion, one task at a time,
// bounded by the dispatcher's global worker semaphore.
func (d *Dispatcher) runLane(o Originator, l *lane) {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		d.sem <- struct{}{}
		d.runOne(o, fn)
		<-d.sem
		l.pending.Done()
	}
}

// DrainOriginator runs every currently queued task for o on the
// calling goroutine, for ModeExplicitDrain hosts (spec.md §9).
func (d *Dispatcher) DrainOriginator(o Originator) {
	l := d.laneFor(o)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		d.runOne(o, fn)
		l.pending.Done()
	}
}

// runOne invokes fn with a per-call timeout. A timeout is logged and
// otherwise ignored: the calling lane moves on to its next task
// (spec.md §4.5, §7).
func (d *Dispatcher) runOne(o Originator, fn Task) {
	ctx, cancel := context.WithTimeout(WithReentrant(context.Background(), o), d.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()

	select {
	case <-done:
	case <-time.After(d.timeout):
		d.logger.Printf("apteryx: watcher callback for originator %s timed out after %s", o, d.timeout)
	}
}

// Wait blocks until every task queued so far for o (by either Enqueue
// or an already-running drain) has completed, success or timeout —
// the semantics set_wait needs (spec.md §4.5).
func (d *Dispatcher) Wait(o Originator) {
	l := d.laneFor(o)
	l.pending.Wait()
}
