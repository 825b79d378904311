// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, or time.Sleep directly. In production, Real() provides the
// standard library behavior. In tests, Fake() provides a deterministic
// clock that advances only when Advance is called.
//
// The sync engine's backoff sleeps all go through a Clock, so retry
// schedules are tested by advancing a FakeClock rather than waiting out
// real delays:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	// ... start the engine with Clock: c ...
//	c.WaitForSleepers(1)       // block until the engine registers a sleep
//	c.Advance(5 * time.Second) // fire it deterministically
package clock
