// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestSession creates a Client and Session pointing at a test server.
func newTestSession(t *testing.T, handler http.Handler) (*Client, *Session) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken("@test:local", "test-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	return client, session
}

func assertAuth(t *testing.T, request *http.Request, expectedToken string) {
	t.Helper()
	auth := request.Header.Get("Authorization")
	expected := "Bearer " + expectedToken
	if auth != expected {
		t.Errorf("unexpected auth header: got %q, want %q", auth, expected)
	}
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func TestWhoAmI(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, WhoAmIResponse{UserID: "@test:local", DeviceID: "DEV1"})
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID != "@test:local" {
		t.Errorf("unexpected user ID: %s", userID)
	}
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		var body LoginRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode login request: %v", err)
		}
		if body.Type != "m.login.password" {
			t.Errorf("unexpected login type: %s", body.Type)
		}
		if body.User != "alice" {
			t.Errorf("unexpected user: %s", body.User)
		}
		writeJSON(writer, AuthResponse{
			UserID:      "@alice:local",
			AccessToken: "tok-1",
			DeviceID:    "DEV2",
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.UserID() != "@alice:local" {
		t.Errorf("unexpected user ID: %s", session.UserID())
	}
	if session.DeviceID() != "DEV2" {
		t.Errorf("unexpected device ID: %s", session.DeviceID())
	}
}

func TestSync(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/sync" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}

		query := request.URL.Query()
		if query.Get("since") != "s123" {
			t.Errorf("unexpected since token: %s", query.Get("since"))
		}
		if query.Get("timeout") != "30000" {
			t.Errorf("unexpected timeout: %s", query.Get("timeout"))
		}

		writeJSON(writer, SyncResponse{
			NextBatch: "s456",
			Rooms: RoomsSection{
				Join: map[string]JoinedRoom{
					"!room1:local": {
						Timeline: TimelineSection{
							Events: []Event{
								{EventID: "$evt1", Type: "m.room.message", Sender: "@alice:local"},
							},
						},
					},
				},
			},
		})
	}))

	response, err := session.Sync(context.Background(), SyncOptions{
		Since:      "s123",
		Timeout:    30000,
		SetTimeout: true,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if response.NextBatch != "s456" {
		t.Errorf("unexpected next_batch: %s", response.NextBatch)
	}
	room, ok := response.Rooms.Join["!room1:local"]
	if !ok {
		t.Fatal("expected room !room1:local in sync response")
	}
	if len(room.Timeline.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(room.Timeline.Events))
	}
}

func TestSyncServerError(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(writer).Encode(MatrixError{Code: ErrCodeUnknown, Message: "overloaded"})
	}))

	_, err := session.Sync(context.Background(), SyncOptions{})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("expected *MatrixError, got %T: %v", err, err)
	}
	if matrixErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want %d", matrixErr.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestSyncNonJSONError(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html>bad gateway</html>"))
	}))

	_, err := session.Sync(context.Background(), SyncOptions{})
	if err == nil {
		t.Fatal("expected error for non-JSON 502 response")
	}
	// The status code must survive even when the body is a reverse
	// proxy's HTML error page: downstream retry classification depends
	// on it.
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("expected *MatrixError, got %T: %v", err, err)
	}
	if matrixErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", matrixErr.StatusCode, http.StatusBadGateway)
	}
	if !strings.Contains(matrixErr.Message, "bad gateway") {
		t.Errorf("raw body lost from message: %v", matrixErr)
	}
}

func TestJoinRoom(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if !strings.HasPrefix(request.URL.Path, "/_matrix/client/v3/join/") {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, map[string]string{"room_id": "!room1:local"})
	}))

	roomID, err := session.JoinRoom(context.Background(), "!room1:local")
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if roomID != "!room1:local" {
		t.Errorf("unexpected room ID: %s", roomID)
	}
}

func TestServerVersions(t *testing.T) {
	client, _ := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/versions" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if request.Header.Get("Authorization") != "" {
			t.Error("versions endpoint should be unauthenticated")
		}
		writeJSON(writer, ServerVersionsResponse{Versions: []string{"v1.11"}})
	}))

	response, err := client.ServerVersions(context.Background())
	if err != nil {
		t.Fatalf("ServerVersions failed: %v", err)
	}
	if len(response.Versions) != 1 || response.Versions[0] != "v1.11" {
		t.Errorf("unexpected versions: %v", response.Versions)
	}
}
