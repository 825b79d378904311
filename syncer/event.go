// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

// Category routes an event to the listeners registered for it.
type Category int

const (
	// CategoryInvite is a room invitation (invite_state events).
	CategoryInvite Category = iota
	// CategoryLeave marks departure from a room.
	CategoryLeave
	// CategoryPresence is a presence state change for some user.
	CategoryPresence
	// CategoryEphemeral covers typing notifications and read receipts.
	CategoryEphemeral
	// CategoryGeneric covers state and timeline events from joined
	// rooms. Generic listeners also observe invite, leave, and
	// presence events, after the category-specific listeners.
	CategoryGeneric
)

func (c Category) String() string {
	switch c {
	case CategoryInvite:
		return "invite"
	case CategoryLeave:
		return "leave"
	case CategoryPresence:
		return "presence"
	case CategoryEphemeral:
		return "ephemeral"
	case CategoryGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// Event is one decoded protocol event flowing from a sync batch to
// listeners. Content is opaque — the engine never interprets it, and
// listeners receive the event by value.
type Event struct {
	Category Category
	Type     string
	RoomID   string
	Sender   string
	StateKey *string
	Content  map[string]any
}

// Batch is the result of one successful poll: the cursor to resume
// from and the ordered events to dispatch.
type Batch struct {
	NextCursor string
	Events     []Event
}
