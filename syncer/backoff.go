// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import "time"

// Default retry delay bounds, applied when EngineConfig.Backoff is
// left zero. 1 second to 30 seconds covers brief server hiccups
// without hammering a struggling homeserver.
const (
	defaultBackoffBase    = time.Second
	defaultBackoffCeiling = 30 * time.Second
)

// Backoff computes retry delays for transient sync failures. It is a
// pure policy: the engine owns the current delay and feeds it back
// through Next after each failed attempt.
type Backoff struct {
	// Base is the delay applied to the first retry and restored after
	// any successful iteration.
	Base time.Duration

	// Ceiling bounds the delay growth. Once reached, further failures
	// keep retrying at the ceiling.
	Ceiling time.Duration
}

// Next returns the delay to apply after the next failure: double the
// current delay, capped at the ceiling. A non-positive current delay
// is treated as Base.
func (b Backoff) Next(current time.Duration) time.Duration {
	if current <= 0 {
		current = b.Base
	}
	next := current * 2
	if next > b.Ceiling {
		next = b.Ceiling
	}
	return next
}

// Reset returns the delay for the first retry after a success: Base.
func (b Backoff) Reset() time.Duration {
	return b.Base
}
