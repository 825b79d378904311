// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

// Presence, typing, and user directory passthroughs. Each method is a
// single request/response with no retry policy — callers that need
// resilience wrap them; the sync engine's backoff applies only to
// /sync.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SetPresence sets this user's presence state ("online",
// "unavailable", or "offline") with an optional status message.
func (s *Session) SetPresence(ctx context.Context, state, statusMsg string) error {
	path := "/_matrix/client/v3/presence/" + url.PathEscape(s.userID) + "/status"
	_, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, PresenceStatus{
		Presence:  state,
		StatusMsg: statusMsg,
	})
	if err != nil {
		return fmt.Errorf("messaging: set presence failed: %w", err)
	}
	return nil
}

// GetPresence fetches the current presence state for a user.
func (s *Session) GetPresence(ctx context.Context, userID string) (*PresenceStatus, error) {
	path := "/_matrix/client/v3/presence/" + url.PathEscape(userID) + "/status"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get presence for %q failed: %w", userID, err)
	}

	var status PresenceStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse presence response: %w", err)
	}
	return &status, nil
}

// ModifyPresenceList invites users to and drops users from this user's
// presence list in a single call. Either slice may be nil.
func (s *Session) ModifyPresenceList(ctx context.Context, invite, drop []string) error {
	if invite == nil {
		invite = []string{}
	}
	if drop == nil {
		drop = []string{}
	}
	path := "/_matrix/client/v3/presence/list/" + url.PathEscape(s.userID)
	_, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, map[string]any{
		"invite": invite,
		"drop":   drop,
	})
	if err != nil {
		return fmt.Errorf("messaging: modify presence list failed: %w", err)
	}
	return nil
}

// PresenceList fetches the presence events for users on this user's
// presence list.
func (s *Session) PresenceList(ctx context.Context) ([]Event, error) {
	path := "/_matrix/client/v3/presence/list/" + url.PathEscape(s.userID)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get presence list failed: %w", err)
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse presence list response: %w", err)
	}
	return events, nil
}

// SendTyping sends a typing notification for this user in a room.
// Fire-and-forget: the server expires the indicator after timeoutMS
// milliseconds if no refresh arrives. Pass typing=false to clear the
// indicator early.
func (s *Session) SendTyping(ctx context.Context, roomID string, typing bool, timeoutMS int) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/typing/%s",
		url.PathEscape(roomID),
		url.PathEscape(s.userID),
	)
	requestBody := map[string]any{"typing": typing}
	if typing {
		requestBody["timeout"] = timeoutMS
	}
	_, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, requestBody)
	if err != nil {
		return fmt.Errorf("messaging: typing notification for %q failed: %w", roomID, err)
	}
	return nil
}

// SearchUserDirectory searches the server's user directory for the
// given term. limit caps the number of results; 0 uses the server
// default.
//
// An absent or malformed "results" field in the response yields an
// empty slice rather than an error: directory search is best-effort,
// and a server that returns a well-formed envelope with a broken
// results list should degrade to "no matches" instead of failing the
// caller.
func (s *Session) SearchUserDirectory(ctx context.Context, term string, limit int) ([]UserRecord, error) {
	requestBody := map[string]any{"search_term": term}
	if limit > 0 {
		requestBody["limit"] = limit
	}

	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/user_directory/search", s.accessToken, requestBody)
	if err != nil {
		return nil, fmt.Errorf("messaging: user directory search failed: %w", err)
	}

	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse search response: %w", err)
	}
	if len(envelope.Results) == 0 {
		return []UserRecord{}, nil
	}

	var results []UserRecord
	if err := json.Unmarshal(envelope.Results, &results); err != nil {
		s.client.logger.Warn("malformed user directory results, returning empty list", "error", err)
		return []UserRecord{}, nil
	}
	if results == nil {
		results = []UserRecord{}
	}
	return results, nil
}
