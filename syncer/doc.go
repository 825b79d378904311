// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncer implements a resilient long-poll sync engine on top of
// the messaging package.
//
// The engine repeatedly issues /sync long-polls through a [Transport],
// fans the resulting events out to listeners registered in a
// [Registry], and persists its position via an optional [CursorStore].
// Failures are classified by [Classify] into three kinds: transient
// server errors (HTTP 5xx) are retried indefinitely with exponential
// backoff bounded by a ceiling; protocol errors (4xx, malformed
// responses, connection failures) terminate the engine unless a
// caller-supplied handler recovers them; cancellation stops the engine
// cleanly.
//
// [Runner] supervises an [Engine] as a background goroutine with
// start/stop semantics. The loop is strictly sequential: at most one
// poll is in flight at any time, so the cursor and backoff state need
// no locking.
//
// Typical wiring:
//
//	registry := syncer.NewRegistry(logger)
//	registry.Register(syncer.CategoryInvite, onInvite)
//	registry.Register(syncer.CategoryGeneric, onEvent)
//
//	engine, err := syncer.NewEngine(syncer.EngineConfig{
//		Transport: syncer.NewSessionTransport(syncer.SessionTransportConfig{
//			Session: session,
//			Timeout: 30 * time.Second,
//		}),
//		Registry: registry,
//		Backoff:  syncer.Backoff{Base: 5 * time.Second, Ceiling: 80 * time.Second},
//	})
//
//	runner := syncer.NewRunner(engine)
//	runner.Start(ctx)
//	defer runner.Stop()
//
// Register all listeners before starting the runner. The registry
// tolerates concurrent registration, but listeners added after start
// may miss events already in flight.
package syncer
