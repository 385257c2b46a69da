package debate

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
)

// WebSocketHandler streams sequential debates over a WebSocket: the client
// sends one start request, the server pushes a typed envelope per turn.
type WebSocketHandler struct {
	sequencer Sequencer
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket debate handler.
func NewWebSocketHandler(sequencer Sequencer) *WebSocketHandler {
	return &WebSocketHandler{
		sequencer: sequencer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes mounts the WebSocket route.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/debate/ws", h.handleWebSocket)
}

type startMessage struct {
	SessionID      string   `json:"session_id"`
	AgentIDs       []string `json:"agent_ids"`
	DataSample     string   `json:"data_sample"`
	CollectionName string   `json:"collection_name"`
}

type envelope struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[debate] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var start startMessage
	if err := conn.ReadJSON(&start); err != nil {
		h.send(conn, envelope{Type: "error", Data: "invalid start message", Timestamp: now()})
		return
	}
	if len(start.AgentIDs) == 0 || start.DataSample == "" {
		h.send(conn, envelope{Type: "error", Data: "agent_ids and data_sample are required", Timestamp: now()})
		return
	}

	sessionID, chain, err := h.sequencer.StreamDebateSequence(r.Context(), start.SessionID, start.AgentIDs, start.DataSample, start.CollectionName,
		func(entry debateModel.ChainEntry) {
			h.send(conn, envelope{Type: "entry", Data: entry, Timestamp: now()})
		})
	if err != nil {
		h.send(conn, envelope{Type: "error", SessionID: sessionID, Data: err.Error(), Timestamp: now()})
		return
	}

	h.send(conn, envelope{
		Type:      "done",
		SessionID: sessionID,
		Data:      debateModel.SequenceResult{SessionID: sessionID, Chain: chain},
		Timestamp: now(),
	})
}

func (h *WebSocketHandler) send(conn *websocket.Conn, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("[debate] failed to marshal websocket envelope: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("[debate] failed to write websocket message: %v", err)
	}
}

func now() int64 {
	return time.Now().UnixMilli()
}
