package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	"github.com/jitc-genai/conformance/backend/pkg/utils"
)

// Store is the agent registry surface the handler needs. Writes happen
// only here, at the admin boundary; the orchestration core reads only.
type Store interface {
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	AgentByID(ctx context.Context, id string) (agent.Agent, error)
	CreateAgent(ctx context.Context, a agent.Agent) error
}

// Handler exposes the agent registry over HTTP.
type Handler struct {
	store Store
}

// New creates the agent registry handler.
func New(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleList)
	r.Post("/agents", h.handleCreate)
	r.Get("/agents/{agentID}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAgents(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	utils.RespondJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")

	ag, err := h.store.AgentByID(r.Context(), id)
	if errors.Is(err, agent.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}
	utils.RespondJSON(w, http.StatusOK, ag)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID                 string `json:"id"`
		Name               string `json:"name"`
		ModelName          string `json:"model_name"`
		SystemPrompt       string `json:"system_prompt"`
		UserPromptTemplate string `json:"user_prompt_template"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if payload.ModelName == "" {
		utils.RespondError(w, http.StatusBadRequest, "model_name is required")
		return
	}

	ag := agent.Agent{
		ID:                 payload.ID,
		Name:               payload.Name,
		ModelName:          payload.ModelName,
		SystemPrompt:       payload.SystemPrompt,
		UserPromptTemplate: payload.UserPromptTemplate,
	}
	if ag.ID == "" {
		ag.ID = uuid.NewString()
	}

	if err := h.store.CreateAgent(r.Context(), ag); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, ag)
}
