package debate

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
	debateService "github.com/jitc-genai/conformance/backend/internal/service/debate"
	"github.com/jitc-genai/conformance/backend/pkg/utils"
)

// Sequencer runs sequential debate chains.
type Sequencer interface {
	RunDebateSequence(ctx context.Context, sessionID string, agentIDs []string, subject string) (string, []debateModel.ChainEntry, error)
	RunRAGDebateSequence(ctx context.Context, sessionID string, agentIDs []string, subject, collection string) (string, []debateModel.ChainEntry, error)
	StreamDebateSequence(ctx context.Context, sessionID string, agentIDs []string, subject, collection string, onEntry func(debateModel.ChainEntry)) (string, []debateModel.ChainEntry, error)
}

// SessionReader exposes stored session membership for replay.
type SessionReader interface {
	LoadOrdered(ctx context.Context, sessionID string) ([]agent.Agent, error)
}

// Handler exposes debate sequences over HTTP, including an SSE stream.
type Handler struct {
	sequencer Sequencer
	sessions  SessionReader
}

// New creates the debate handler.
func New(sequencer Sequencer, sessions SessionReader) *Handler {
	return &Handler{sequencer: sequencer, sessions: sessions}
}

// RegisterRoutes mounts the debate routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/debate/sequence", h.handleSequence)
	r.Post("/rag/debate/sequence", h.handleRAGSequence)
	r.Get("/debate/stream", h.handleStream)
	r.Get("/debate/{sessionID}/agents", h.handleSessionAgents)
}

type sequenceRequest struct {
	SessionID      string   `json:"session_id"`
	AgentIDs       []string `json:"agent_ids"`
	DataSample     string   `json:"data_sample"`
	CollectionName string   `json:"collection_name"`
}

func (h *Handler) handleSequence(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeSequenceRequest(w, r)
	if !ok {
		return
	}

	sessionID, chain, err := h.sequencer.RunDebateSequence(r.Context(), payload.SessionID, payload.AgentIDs, payload.DataSample)
	if err != nil {
		h.respondSequenceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, debateModel.SequenceResult{SessionID: sessionID, Chain: chain})
}

func (h *Handler) handleRAGSequence(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeSequenceRequest(w, r)
	if !ok {
		return
	}
	if payload.CollectionName == "" {
		utils.RespondError(w, http.StatusBadRequest, "collection_name is required")
		return
	}

	sessionID, chain, err := h.sequencer.RunRAGDebateSequence(r.Context(), payload.SessionID, payload.AgentIDs, payload.DataSample, payload.CollectionName)
	if err != nil {
		h.respondSequenceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, debateModel.SequenceResult{SessionID: sessionID, Chain: chain})
}

// handleStream runs a sequential debate and emits each turn as an SSE
// event. Query parameters mirror the JSON sequence request so that
// EventSource clients can use it directly.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	agentIDs := splitIDs(r.URL.Query().Get("agent_ids"))
	subject := r.URL.Query().Get("data_sample")
	if len(agentIDs) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "agent_ids query parameter is required")
		return
	}
	if subject == "" {
		utils.RespondError(w, http.StatusBadRequest, "data_sample query parameter is required")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	collection := r.URL.Query().Get("collection_name")

	utils.SetupSSEHeaders(w)
	log.Printf("[debate] opening sse stream, agents=%d", len(agentIDs))

	sessionID, chain, err := h.sequencer.StreamDebateSequence(r.Context(), sessionID, agentIDs, subject, collection,
		func(entry debateModel.ChainEntry) {
			utils.SendSSEEvent(w, flusher, "entry", entry)
		})
	if err != nil {
		utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}

	utils.SendSSEEvent(w, flusher, "done", debateModel.SequenceResult{SessionID: sessionID, Chain: chain})
}

func (h *Handler) handleSessionAgents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	agents, err := h.sessions.LoadOrdered(r.Context(), sessionID)
	if err != nil {
		log.Printf("[debate] failed to load session %s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"agents":     agents,
	})
}

func decodeSequenceRequest(w http.ResponseWriter, r *http.Request) (sequenceRequest, bool) {
	var payload sequenceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return payload, false
	}
	if len(payload.AgentIDs) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "agent_ids is required")
		return payload, false
	}
	if payload.DataSample == "" {
		utils.RespondError(w, http.StatusBadRequest, "data_sample is required")
		return payload, false
	}
	return payload, true
}

func (h *Handler) respondSequenceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, debateService.ErrNoAgents):
		utils.RespondError(w, http.StatusBadRequest, "at least one agent is required")
	case errors.Is(err, debateService.ErrEmptySession):
		utils.RespondError(w, http.StatusBadRequest, "no known agents in session")
	default:
		log.Printf("[debate] sequence failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "debate sequence failed")
	}
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
