// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// Event represents a protocol event from the server. Content is an
// opaque payload — this package never interprets it.
type Event struct {
	EventID        string         `json:"event_id,omitempty"`
	Type           string         `json:"type"`
	Sender         string         `json:"sender,omitempty"`
	OriginServerTS int64          `json:"origin_server_ts,omitempty"`
	Content        map[string]any `json:"content"`
	RoomID         string         `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string          `json:"next_batch"`
	Presence  PresenceSection `json:"presence,omitempty"`
	Rooms     RoomsSection    `json:"rooms"`
}

// PresenceSection contains presence events from the /sync response.
// Each event reports one user's presence state change.
type PresenceSection struct {
	Events []Event `json:"events"`
}

// RoomsSection contains per-room sync data grouped by membership state.
type RoomsSection struct {
	Join   map[string]JoinedRoom  `json:"join,omitempty"`
	Invite map[string]InvitedRoom `json:"invite,omitempty"`
	Leave  map[string]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline  TimelineSection `json:"timeline"`
	State     StateSection    `json:"state"`
	Ephemeral StateSection    `json:"ephemeral"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state or ephemeral events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// PresenceStatus carries one user's presence state, returned by
// GetPresence and used as the body for SetPresence.
type PresenceStatus struct {
	// Presence is the state: "online", "unavailable", or "offline".
	Presence string `json:"presence"`

	// StatusMsg is an optional user-set status message.
	StatusMsg string `json:"status_msg,omitempty"`

	// LastActiveAgo is milliseconds since the user was last active.
	// Zero when unknown or when the user is currently active.
	LastActiveAgo int64 `json:"last_active_ago,omitempty"`

	// CurrentlyActive is true when the user is actively using a client
	// right now.
	CurrentlyActive bool `json:"currently_active,omitempty"`
}

// UserRecord is one entry from the user directory search response.
type UserRecord struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
