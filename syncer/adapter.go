// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"sort"
	"time"

	"github.com/fathom-im/fathom/messaging"
)

// Transport issues one long-poll per call and returns either a parsed
// batch or an error for the engine to classify. Implementations must
// not retry internally — the retry policy lives in the engine.
type Transport interface {
	// Poll blocks until the server returns events, the long-poll
	// timeout elapses, or ctx is cancelled. since is the current
	// cursor; empty means initial sync.
	Poll(ctx context.Context, since string) (*Batch, error)
}

// SessionTransportConfig configures a SessionTransport.
type SessionTransportConfig struct {
	// Session is the authenticated session to poll with.
	Session *messaging.Session

	// Timeout is the server-side long-poll hold time. The server
	// returns an empty batch after this duration when no events
	// arrive. Default: 30 seconds, the client-server spec
	// recommendation.
	Timeout time.Duration

	// Filter is an optional filter ID or inline JSON filter applied
	// to every poll.
	Filter string
}

// SessionTransport adapts messaging.Session.Sync to the Transport
// interface, flattening each sync response into one ordered batch.
type SessionTransport struct {
	session *messaging.Session
	timeout time.Duration
	filter  string
}

// NewSessionTransport creates a Transport over an authenticated
// session.
func NewSessionTransport(config SessionTransportConfig) *SessionTransport {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SessionTransport{
		session: config.Session,
		timeout: timeout,
		filter:  config.Filter,
	}
}

// Poll issues one /sync long-poll and flattens the response.
func (t *SessionTransport) Poll(ctx context.Context, since string) (*Batch, error) {
	response, err := t.session.Sync(ctx, messaging.SyncOptions{
		Since:      since,
		Timeout:    int(t.timeout.Milliseconds()),
		SetTimeout: true,
		Filter:     t.filter,
	})
	if err != nil {
		return nil, err
	}
	return flattenResponse(response), nil
}

// flattenResponse converts a sync response into one ordered event
// batch: invites, leaves, presence, then per-joined-room state and
// timeline (generic) followed by ephemeral events. Rooms are visited
// in sorted ID order so a given response always flattens the same way.
func flattenResponse(response *messaging.SyncResponse) *Batch {
	batch := &Batch{NextCursor: response.NextBatch}

	for _, roomID := range sortedKeys(response.Rooms.Invite) {
		room := response.Rooms.Invite[roomID]
		for _, event := range room.InviteState.Events {
			batch.Events = append(batch.Events, convertEvent(CategoryInvite, roomID, event))
		}
	}

	for _, roomID := range sortedKeys(response.Rooms.Leave) {
		room := response.Rooms.Leave[roomID]
		events := append(append([]messaging.Event{}, room.State.Events...), room.Timeline.Events...)
		if len(events) == 0 {
			// The server reported the departure without any events
			// (possible under aggressive filters). Listeners still
			// need to learn the room is gone.
			batch.Events = append(batch.Events, Event{Category: CategoryLeave, RoomID: roomID})
			continue
		}
		for _, event := range events {
			batch.Events = append(batch.Events, convertEvent(CategoryLeave, roomID, event))
		}
	}

	for _, event := range response.Presence.Events {
		batch.Events = append(batch.Events, convertEvent(CategoryPresence, "", event))
	}

	for _, roomID := range sortedKeys(response.Rooms.Join) {
		room := response.Rooms.Join[roomID]
		for _, event := range room.State.Events {
			batch.Events = append(batch.Events, convertEvent(CategoryGeneric, roomID, event))
		}
		for _, event := range room.Timeline.Events {
			batch.Events = append(batch.Events, convertEvent(CategoryGeneric, roomID, event))
		}
		for _, event := range room.Ephemeral.Events {
			batch.Events = append(batch.Events, convertEvent(CategoryEphemeral, roomID, event))
		}
	}

	return batch
}

func convertEvent(category Category, roomID string, event messaging.Event) Event {
	if event.RoomID != "" {
		roomID = event.RoomID
	}
	return Event{
		Category: category,
		Type:     event.Type,
		RoomID:   roomID,
		Sender:   event.Sender,
		StateKey: event.StateKey,
		Content:  event.Content,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
