package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestStartSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/start" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req StartSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.StudyID != "study-001" {
			t.Errorf("StudyID = %q", req.StudyID)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Session{
			SessionID:     "sess-1",
			ParticipantID: "P-1001",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	session, err := c.StartSession(context.Background(), StartSessionRequest{
		ParticipantName: "Jana",
		StudyID:         "study-001",
	})
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	if session.SessionID != "sess-1" || session.ParticipantID != "P-1001" {
		t.Errorf("session = %+v", session)
	}
}

func TestStartSessionServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.StartSession(context.Background(), StartSessionRequest{StudyID: "s"}); err == nil {
		t.Fatal("StartSession() should fail on 500")
	}
}

func TestChannelRoundTrip(t *testing.T) {
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/interview" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "sess-1" {
			t.Errorf("session_id = %q", got)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Greet, then echo one client frame back.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"agent_message","content":"hello"}`))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg
		// Hold the connection open until the client closes it.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ch, err := c.Connect(context.Background(), &Session{SessionID: "sess-1"}, "study-001")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer ch.Close()

	select {
	case msg := <-ch.Messages():
		if string(msg) != `{"type":"agent_message","content":"hello"}` {
			t.Errorf("inbound = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}

	if err := ch.Send(map[string]string{"type": "start_recording"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != `{"type":"start_recording"}` {
			t.Errorf("server received %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive frame")
	}
}

func TestChannelSendAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ch, err := c.Connect(context.Background(), &Session{SessionID: "sess-1"}, "study-001")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := ch.Send(map[string]string{"type": "start_recording"}); err == nil {
		t.Error("Send() after Close should fail")
	}
	// Close is idempotent.
	if err := ch.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestChannelSurfacesServerDrop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop without a close handshake.
		_ = conn.Close()
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ch, err := c.Connect(context.Background(), &Session{SessionID: "sess-1"}, "study-001")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer ch.Close()

	select {
	case <-ch.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("expected read error after server drop")
	}
}
