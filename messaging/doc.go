// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API
// that the sync engine and its consumers need.
//
// The package provides two core types. [Client] is an unauthenticated
// client holding the homeserver URL and HTTP transport; it produces
// authenticated [Session] values via [Client.Login] or
// [Client.SessionFromToken]. Sessions are lightweight (a pointer to the
// parent Client plus an access token) and share the Client's connection
// pool.
//
// [Session.Sync] issues one incremental /sync long-poll and is the
// primitive the syncer package builds its retry loop on. The remaining
// Session methods are simple request/response passthroughs with no
// retry policy of their own: presence (set state, get state, presence
// list), typing notifications, user directory search, room join, and
// WhoAmI token validation.
//
// All API errors are returned as [*MatrixError] with the standard
// protocol error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and the HTTP
// status code. The status code drives the syncer package's
// transient/fatal classification: 5xx responses are retried with
// backoff, everything else propagates. [IsMatrixError] tests for a
// specific error code. Request URLs are built by string concatenation
// rather than url.URL to avoid double-encoding of path segments that
// contain URL-encoded characters.
package messaging
