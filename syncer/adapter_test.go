// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fathom-im/fathom/messaging"
)

func newTestTransport(t *testing.T, handler http.Handler, config SessionTransportConfig) *SessionTransport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: server.URL,
		Logger:        discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken("@tail:example.org", "syt_test_token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	config.Session = session
	return NewSessionTransport(config)
}

const flattenFixture = `{
	"next_batch": "s42",
	"presence": {"events": [
		{"type": "m.presence", "sender": "@alice:example.org",
		 "content": {"presence": "online"}}
	]},
	"rooms": {
		"invite": {
			"!inv:example.org": {"invite_state": {"events": [
				{"type": "m.room.member", "sender": "@alice:example.org",
				 "state_key": "@tail:example.org",
				 "content": {"membership": "invite"}}
			]}}
		},
		"leave": {
			"!gone:example.org": {
				"state": {"events": []},
				"timeline": {"events": [
					{"type": "m.room.member", "sender": "@tail:example.org",
					 "content": {"membership": "leave"}}
				]}
			},
			"!silent:example.org": {
				"state": {"events": []},
				"timeline": {"events": []}
			}
		},
		"join": {
			"!b:example.org": {
				"state": {"events": []},
				"timeline": {"events": [
					{"type": "m.room.message", "sender": "@bob:example.org",
					 "content": {"body": "late alphabetically"}}
				]},
				"ephemeral": {"events": []}
			},
			"!a:example.org": {
				"state": {"events": [
					{"type": "m.room.name", "state_key": "",
					 "content": {"name": "ops"}}
				]},
				"timeline": {"events": [
					{"type": "m.room.message", "sender": "@alice:example.org",
					 "content": {"body": "hello"}}
				]},
				"ephemeral": {"events": [
					{"type": "m.typing", "content": {"user_ids": ["@alice:example.org"]}}
				]}
			}
		}
	}
}`

func TestSessionTransportFlattening(t *testing.T) {
	transport := newTestTransport(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(flattenFixture))
	}), SessionTransportConfig{})

	batch, err := transport.Poll(context.Background(), "")
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if batch.NextCursor != "s42" {
		t.Errorf("NextCursor = %q, want %q", batch.NextCursor, "s42")
	}

	type shape struct {
		category Category
		roomID   string
		typ      string
	}
	want := []shape{
		{CategoryInvite, "!inv:example.org", "m.room.member"},
		{CategoryLeave, "!gone:example.org", "m.room.member"},
		{CategoryLeave, "!silent:example.org", ""},
		{CategoryPresence, "", "m.presence"},
		{CategoryGeneric, "!a:example.org", "m.room.name"},
		{CategoryGeneric, "!a:example.org", "m.room.message"},
		{CategoryEphemeral, "!a:example.org", "m.typing"},
		{CategoryGeneric, "!b:example.org", "m.room.message"},
	}
	if len(batch.Events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(batch.Events), len(want), batch.Events)
	}
	for i, event := range batch.Events {
		if event.Category != want[i].category || event.RoomID != want[i].roomID || event.Type != want[i].typ {
			t.Errorf("event %d = {%v %q %q}, want {%v %q %q}",
				i, event.Category, event.RoomID, event.Type,
				want[i].category, want[i].roomID, want[i].typ)
		}
	}

	// The synthetic departure marker carries no payload.
	if batch.Events[2].Content != nil {
		t.Errorf("synthetic leave event has content: %v", batch.Events[2].Content)
	}
	// Event-level room IDs and payloads survive flattening.
	if body := batch.Events[5].Content["body"]; body != "hello" {
		t.Errorf("event content body = %v, want %q", body, "hello")
	}
	if key := batch.Events[4].StateKey; key == nil || *key != "" {
		t.Errorf("state event lost its state key: %v", key)
	}
}

func TestSessionTransportQueryParameters(t *testing.T) {
	var gotQuery map[string]string
	handler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotQuery = map[string]string{}
		for key := range request.URL.Query() {
			gotQuery[key] = request.URL.Query().Get(key)
		}
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(messaging.SyncResponse{NextBatch: "s1"})
	})

	t.Run("defaults", func(t *testing.T) {
		transport := newTestTransport(t, handler, SessionTransportConfig{})
		if _, err := transport.Poll(context.Background(), ""); err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if gotQuery["timeout"] != "30000" {
			t.Errorf("timeout = %q, want default 30000", gotQuery["timeout"])
		}
		if _, present := gotQuery["since"]; present {
			t.Error("initial sync should not send a since token")
		}
	})

	t.Run("cursor and filter", func(t *testing.T) {
		transport := newTestTransport(t, handler, SessionTransportConfig{
			Timeout: 15 * time.Second,
			Filter:  "filter_id_1",
		})
		if _, err := transport.Poll(context.Background(), "s99"); err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if gotQuery["since"] != "s99" {
			t.Errorf("since = %q, want %q", gotQuery["since"], "s99")
		}
		if gotQuery["timeout"] != "15000" {
			t.Errorf("timeout = %q, want 15000", gotQuery["timeout"])
		}
		if gotQuery["filter"] != "filter_id_1" {
			t.Errorf("filter = %q, want %q", gotQuery["filter"], "filter_id_1")
		}
	})
}

func TestSessionTransportPassesThroughErrors(t *testing.T) {
	transport := newTestTransport(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte(`{"errcode": "M_UNKNOWN", "error": "upstream down"}`))
	}), SessionTransportConfig{})

	_, err := transport.Poll(context.Background(), "s1")
	var matrixErr *messaging.MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("Poll returned %v, want *messaging.MatrixError", err)
	}
	if matrixErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", matrixErr.StatusCode)
	}
	if Classify(err) != FailureTransient {
		t.Errorf("Classify = %v, want transient", Classify(err))
	}
}

func TestSessionTransportNonJSONServerError(t *testing.T) {
	// A reverse proxy in front of the homeserver answers 502 with an
	// HTML page. The retry policy must still see a transient failure.
	transport := newTestTransport(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/html")
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html>bad gateway</html>"))
	}), SessionTransportConfig{})

	_, err := transport.Poll(context.Background(), "s1")
	if err == nil {
		t.Fatal("Poll should fail on a 502")
	}
	if kind := Classify(err); kind != FailureTransient {
		t.Errorf("Classify = %v, want transient", kind)
	}
}
