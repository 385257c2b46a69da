package chat

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatModel "github.com/jitc-genai/conformance/backend/internal/model/chat"
	"github.com/jitc-genai/conformance/backend/internal/service/llm"
	"github.com/jitc-genai/conformance/backend/pkg/utils"
)

const defaultHistoryLimit = 50

// HistoryStore persists and lists answered chat queries.
type HistoryStore interface {
	Record(ctx context.Context, userQuery, response string) error
	History(ctx context.Context, limit int) ([]chatModel.Record, error)
}

// Handler exposes a direct single-model chat endpoint plus its history.
type Handler struct {
	completer llm.Completer
	history   HistoryStore
	backendID string
}

// New creates the chat handler. backendID names the hosted model that
// answers direct chat queries.
func New(completer llm.Completer, history HistoryStore, backendID string) *Handler {
	return &Handler{
		completer: completer,
		history:   history,
		backendID: backendID,
	}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/history", h.handleHistory)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Query string `json:"query"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Query == "" {
		utils.RespondError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := h.completer.Complete(r.Context(), h.backendID, "", payload.Query)
	if err != nil {
		log.Printf("[chat] completion failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, llm.ErrorText(h.backendID, err))
		return
	}

	if err := h.history.Record(r.Context(), payload.Query, answer); err != nil {
		log.Printf("[chat] failed to record history: %v", err)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"response": answer})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.History(r.Context(), limit)
	if err != nil {
		log.Printf("[chat] failed to load history: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}
