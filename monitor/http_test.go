package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bosley/parley/convo"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) (*Server, *convo.Transcript, *httptest.Server) {
	t.Helper()

	transcript := convo.NewTranscript()
	srv := NewServer("127.0.0.1:0", transcript, prometheus.NewRegistry())

	router := mux.NewRouter()
	router.HandleFunc("/api/transcript", srv.handleTranscript).Methods("GET")
	router.HandleFunc("/ws", srv.handleWebSocket)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return srv, transcript, ts
}

func TestTranscriptEndpoint(t *testing.T) {
	_, transcript, ts := newTestServer(t)

	transcript.Append(convo.Entry{
		ID:        uuid.New(),
		Role:      convo.RoleUser,
		Text:      "hello there",
		Finalized: true,
	})

	resp, err := http.Get(ts.URL + "/api/transcript")
	if err != nil {
		t.Fatalf("GET /api/transcript: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var entries []convo.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "hello there" {
		t.Errorf("expected text %q, got %q", "hello there", entries[0].Text)
	}
}

func TestFeedReceivesBroadcast(t *testing.T) {
	srv, _, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	defer conn.Close()

	// Wait for registration before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.Lock()
		n := len(srv.subscribers)
		srv.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	entry := convo.Entry{
		ID:        uuid.New(),
		Role:      convo.RoleAssistant,
		Text:      "broadcast me",
		Finalized: true,
	}
	srv.Broadcast(entry)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading feed message: %v", err)
	}

	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshaling feed message: %v", err)
	}
	if msg.Type != "transcript" {
		t.Errorf("expected type transcript, got %q", msg.Type)
	}
	if msg.Payload.Text != "broadcast me" {
		t.Errorf("expected payload text %q, got %q", "broadcast me", msg.Payload.Text)
	}
}
