// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Session is an authenticated protocol session. It wraps a Client with
// an access token for making authenticated API calls. Sessions are
// lightweight and safe to create in large numbers; they share the
// parent Client's connection pool.
type Session struct {
	client      *Client
	accessToken string
	userID      string
	deviceID    string
}

// UserID returns the fully-qualified user ID (e.g., "@alice:example.org").
func (s *Session) UserID() string {
	return s.userID
}

// DeviceID returns the device ID for this session. Empty for sessions
// created with SessionFromToken.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a sync error to force
// the next request to establish a fresh TCP connection.
func (s *Session) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// WhoAmI validates the access token and returns the user ID. Useful
// for checking whether a stored token is still valid.
func (s *Session) WhoAmI(ctx context.Context) (string, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// Sync performs one incremental sync with the homeserver. For the
// initial sync, leave options.Since empty. For long-polling, set
// options.Timeout to the desired wait in milliseconds and
// options.SetTimeout to true.
//
// The returned error is a *MatrixError for protocol-level failures;
// its StatusCode drives the syncer package's retry classification.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// JoinRoom joins a room by ID. Returns the room ID reported by the
// server. Consumers acting on invite events use this to accept them.
func (s *Session) JoinRoom(ctx context.Context, roomID string) (string, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID)
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return "", fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}

	var response struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse join response: %w", err)
	}
	return response.RoomID, nil
}
