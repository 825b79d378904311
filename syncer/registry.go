// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"log/slog"
	"sync"
)

// Listener receives one event. Listeners run synchronously on the
// engine's goroutine unless wrapped with Detached; a listener that
// blocks stalls the sync loop.
type Listener func(Event)

// Registry maps event categories to ordered listener lists. It is
// append-only: listeners are never removed, and dispatch never mutates
// the registry. Registration is expected at setup time, before the
// runner starts, but the registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	listeners map[Category][]Listener
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger defaults to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		listeners: make(map[Category][]Listener),
		logger:    logger,
	}
}

// Register appends a listener for the given category. Listeners are
// invoked in registration order.
func (r *Registry) Register(category Category, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[category] = append(r.listeners[category], fn)
}

// Dispatch delivers an event to every listener registered for its
// category, in registration order. Invite, leave, and presence events
// are then delivered to the generic listeners, so specialized handlers
// observe the event before general-purpose ones. Ephemeral events go
// to ephemeral listeners only.
//
// A panicking listener is recovered and logged; dispatch continues
// with the remaining listeners so one misbehaving consumer cannot
// starve the others or stall the sync loop.
func (r *Registry) Dispatch(event Event) {
	r.mu.RLock()
	specific := r.listeners[event.Category]
	var generic []Listener
	switch event.Category {
	case CategoryInvite, CategoryLeave, CategoryPresence:
		generic = r.listeners[CategoryGeneric]
	}
	r.mu.RUnlock()

	for _, fn := range specific {
		r.invoke(fn, event)
	}
	for _, fn := range generic {
		r.invoke(fn, event)
	}
}

// invoke runs one listener, containing any panic.
func (r *Registry) invoke(fn Listener, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("listener panicked",
				"category", event.Category,
				"event_type", event.Type,
				"room_id", event.RoomID,
				"panic", recovered,
			)
		}
	}()
	fn(event)
}

// Detached wraps a listener so each invocation runs in its own
// goroutine, decoupling slow consumers from the sync loop. The engine
// never knows the adaptation occurred. Panics in the detached
// goroutine are recovered and logged. Apply at registration time:
//
//	registry.Register(syncer.CategoryGeneric, syncer.Detached(logger, slowConsumer))
//
// Detached listeners observe events in dispatch order but provide no
// completion ordering — a later event's goroutine may finish first.
func Detached(logger *slog.Logger, fn Listener) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(event Event) {
		go func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.Error("detached listener panicked",
						"category", event.Category,
						"event_type", event.Type,
						"panic", recovered,
					)
				}
			}()
			fn(event)
		}()
	}
}
