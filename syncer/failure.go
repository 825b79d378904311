// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"

	"github.com/fathom-im/fathom/messaging"
)

// FailureKind classifies one failed sync iteration. The engine
// consumes the classification with an exhaustive switch — there is no
// exception-style control flow distinguishing retryable from fatal
// errors.
type FailureKind int

const (
	// FailureTransient is a server-reported error with status >= 500:
	// a server-side hiccup worth retrying with backoff.
	FailureTransient FailureKind = iota

	// FailureFatal is everything else: 4xx protocol errors, malformed
	// responses, and connection-level failures. Retrying cannot help a
	// client-side contract violation, so these propagate immediately
	// unless a handler recovers them.
	FailureFatal

	// FailureCancelled is an externally triggered cancellation: the
	// consumer cancelled the engine's context. The engine stops cleanly
	// without propagating an error.
	FailureCancelled
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureFatal:
		return "fatal"
	case FailureCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps a poll error to its FailureKind.
//
// Context cancellation is Cancelled. Deadline expiry is deliberately
// NOT: a deadline error with the engine's context still live comes
// from an inner scope, typically an http.Client whose Timeout is
// shorter than the long-poll hold time, and treating it as a stop
// request would halt the engine silently on every poll. The engine
// recognizes its own context's expiry before classifying, so a
// deadline error reaching Classify takes the fatal-unless-handled
// path. A *messaging.MatrixError with status >= 500 is Transient.
// Everything else, 4xx errors, parse failures, connection resets, is
// Fatal. Connection-level failures follow the fatal-unless-handled
// path: the caller's handler decides whether an unreachable server is
// worth riding out.
func Classify(err error) FailureKind {
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}
	var matrixErr *messaging.MatrixError
	if errors.As(err, &matrixErr) && matrixErr.StatusCode >= 500 {
		return FailureTransient
	}
	return FailureFatal
}
