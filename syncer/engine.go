// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fathom-im/fathom/lib/clock"
)

// State is the engine's lifecycle position.
type State int32

const (
	// StateIdle is the state before Run is called.
	StateIdle State = iota
	// StateRunning means the poll loop is active.
	StateRunning
	// StateStopped is the terminal state after a clean cancellation.
	StateStopped
	// StateFailed is the terminal state after an unrecovered fatal
	// error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrEngineConsumed is returned by Run when the engine has already run.
// Engines are single-use: construct a new one to sync again.
var ErrEngineConsumed = errors.New("syncer: engine already ran")

// EngineConfig holds the collaborators and policy for an Engine.
type EngineConfig struct {
	// Transport issues the long-polls. Required.
	Transport Transport

	// Registry receives dispatched events. Required.
	Registry *Registry

	// Backoff is the retry delay policy for transient failures. Zero
	// values default to base 1s, ceiling 30s.
	Backoff Backoff

	// OnFatal, when non-nil, is invoked once per fatal failure. A nil
	// return means the failure is recovered and the loop continues; a
	// non-nil return stops the engine with that error. When OnFatal is
	// nil, fatal failures stop the engine directly.
	OnFatal func(error) error

	// CursorStore, when non-nil, persists the cursor after each
	// successfully dispatched batch and seeds the initial cursor on
	// start. Persistence failures are logged, never fatal.
	CursorStore CursorStore

	// Clock drives the backoff sleeps. Nil defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Nil defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Engine runs the long-poll loop: poll, dispatch, advance the cursor,
// and on failure either back off and retry or escalate. The loop is
// strictly sequential — at most one poll is in flight at any time, so
// the cursor and backoff state are owned by the loop goroutine and
// need no locking.
type Engine struct {
	transport Transport
	registry  *Registry
	backoff   Backoff
	onFatal   func(error) error
	store     CursorStore
	clock     clock.Clock
	logger    *slog.Logger

	state  atomic.Int32
	cursor atomic.Value // string
}

// NewEngine validates the configuration and creates an idle engine.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("syncer: Transport is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("syncer: Registry is required")
	}

	backoff := config.Backoff
	if backoff.Base <= 0 {
		backoff.Base = defaultBackoffBase
	}
	if backoff.Ceiling < backoff.Base {
		backoff.Ceiling = defaultBackoffCeiling
		if backoff.Ceiling < backoff.Base {
			backoff.Ceiling = backoff.Base
		}
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		transport: config.Transport,
		registry:  config.Registry,
		backoff:   backoff,
		onFatal:   config.OnFatal,
		store:     config.CursorStore,
		clock:     clk,
		logger:    logger,
	}
	engine.cursor.Store("")
	return engine, nil
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Cursor returns the last consumed sync position. Empty until the
// first successful batch (or cursor store load).
func (e *Engine) Cursor() string {
	return e.cursor.Load().(string)
}

// Run executes the poll loop until ctx is cancelled or a fatal failure
// goes unrecovered. Returns nil after a clean stop, the fatal error
// otherwise. Run may be called once; subsequent calls return
// ErrEngineConsumed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrEngineConsumed
	}

	if e.store != nil {
		saved, err := e.store.Load()
		if err != nil {
			e.logger.Warn("cursor load failed, starting from initial sync", "error", err)
		} else if saved != "" {
			e.cursor.Store(saved)
			e.logger.Info("resuming from saved cursor", "cursor", saved)
		}
	}

	delay := e.backoff.Reset()

	for {
		select {
		case <-ctx.Done():
			return e.stop()
		default:
		}

		batch, err := e.transport.Poll(ctx, e.Cursor())
		if err != nil {
			if ctx.Err() != nil {
				return e.stop()
			}

			// The ctx.Err() check above already handled the engine's own
			// cancellation. A cancellation-shaped error arriving with a
			// live context came from an inner scope and must not stop the
			// engine silently, so it shares the fatal path.
			switch Classify(err) {
			case FailureTransient:
				e.logger.Warn("transient sync failure, backing off",
					"delay", delay,
					"error", err,
				)
				select {
				case <-ctx.Done():
					return e.stop()
				case <-e.clock.After(delay):
				}
				delay = e.backoff.Next(delay)
				// Retry with the same cursor: the failed iteration
				// consumed no progress.
				continue

			default:
				if e.onFatal == nil {
					e.state.Store(int32(StateFailed))
					return err
				}
				if handlerErr := e.onFatal(err); handlerErr != nil {
					e.state.Store(int32(StateFailed))
					return handlerErr
				}
				e.logger.Warn("fatal sync failure recovered by handler", "error", err)
				continue
			}
		}

		// Dispatch the whole batch before advancing the cursor, so a
		// crash never skips events the listeners have not seen.
		for _, event := range batch.Events {
			e.registry.Dispatch(event)
		}

		e.cursor.Store(batch.NextCursor)
		if e.store != nil {
			if err := e.store.Save(batch.NextCursor); err != nil {
				e.logger.Error("cursor save failed", "cursor", batch.NextCursor, "error", err)
			}
		}
		delay = e.backoff.Reset()
	}
}

// stop transitions to Stopped and reports a clean exit.
func (e *Engine) stop() error {
	e.state.Store(int32(StateStopped))
	e.logger.Info("sync engine stopped", "cursor", e.Cursor())
	return nil
}
