// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyRunning is returned by Runner.Start when the runner has
// already been started. Runners are single-shot, matching the engine
// they supervise.
var ErrAlreadyRunning = errors.New("syncer: runner already started")

// Runner supervises one Engine as a cancellable background goroutine.
// Start spawns the engine and returns immediately; Stop requests
// cancellation and blocks until the engine observably terminates.
// Cancellation is cooperative: it takes effect at the top of the next
// loop iteration, during a backoff sleep, or when the in-flight poll
// aborts (the request is context-bound, so the poll timeout bounds
// cancellation latency).
type Runner struct {
	engine *Engine

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	err     error

	done chan struct{}
}

// NewRunner creates a runner for the given engine.
func NewRunner(engine *Engine) *Runner {
	return &Runner{
		engine: engine,
		done:   make(chan struct{}),
	}
}

// Start spawns the engine in a background goroutine and returns
// immediately. Calling Start a second time — whether the engine is
// still running or has terminated — returns ErrAlreadyRunning: one
// runner supervises exactly one engine run.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyRunning
	}
	r.started = true

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		err := r.engine.Run(runCtx)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		cancel()
		close(r.done)
	}()
	return nil
}

// Stop requests cancellation and blocks until the engine terminates,
// returning the engine's final error (nil after a clean stop).
// Idempotent; a no-op returning nil if Start was never called.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	<-r.done
	return r.Err()
}

// Done returns a channel closed when the engine terminates, for any
// reason. Owners select on this to observe an unhandled protocol
// error ending the sync loop.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Err returns the engine's final error. Valid after Done is closed;
// nil before termination and after a clean stop.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
