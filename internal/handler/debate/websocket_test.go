package debate

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
)

func dialWebSocket(t *testing.T, seq Sequencer) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	NewWebSocketHandler(seq).RegisterWebSocketRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/debate/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read err: %v", err)
	}
	return env
}

func TestWebSocketStreamsEntriesThenDone(t *testing.T) {
	seq := &fakeSequencer{sessionID: "s-ws", chain: twoEntries()}
	conn := dialWebSocket(t, seq)

	start := map[string]any{
		"agent_ids":   []string{"a1", "a2"},
		"data_sample": "record 42",
	}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write err: %v", err)
	}

	first := readEnvelope(t, conn)
	if first.Type != "entry" {
		t.Fatalf("expected entry envelope, got %q", first.Type)
	}
	second := readEnvelope(t, conn)
	if second.Type != "entry" {
		t.Fatalf("expected second entry envelope, got %q", second.Type)
	}

	done := readEnvelope(t, conn)
	if done.Type != "done" {
		t.Fatalf("expected done envelope, got %q", done.Type)
	}
	if done.SessionID != "s-ws" {
		t.Fatalf("unexpected session id: %s", done.SessionID)
	}

	raw, err := json.Marshal(done.Data)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	var result debateModel.SequenceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal err: %v", err)
	}
	if len(result.Chain) != 2 || result.Chain[1].AgentName != "Beta" {
		t.Fatalf("unexpected chain: %+v", result.Chain)
	}
}

func TestWebSocketRejectsMissingFields(t *testing.T) {
	conn := dialWebSocket(t, &fakeSequencer{})

	if err := conn.WriteJSON(map[string]any{"agent_ids": []string{}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != "error" {
		t.Fatalf("expected error envelope, got %q", env.Type)
	}
}
