package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
	complianceService "github.com/jitc-genai/conformance/backend/internal/service/compliance"
	"github.com/jitc-genai/conformance/backend/pkg/utils"
)

// Checker runs compliance adjudications.
type Checker interface {
	RunComplianceCheck(ctx context.Context, subject string, agentIDs []string) (debateModel.CheckResult, error)
	RunRAGCheck(ctx context.Context, subject string, agentIDs []string, collection string) (debateModel.CheckResult, error)
}

// Handler exposes the compliance checks over HTTP.
type Handler struct {
	checker Checker
}

// New creates the compliance handler.
func New(checker Checker) *Handler {
	return &Handler{checker: checker}
}

// RegisterRoutes mounts the compliance routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/compliance/check", h.handleCheck)
	r.Post("/rag/check", h.handleRAGCheck)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DataSample string   `json:"data_sample"`
		AgentIDs   []string `json:"agent_ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.DataSample == "" {
		utils.RespondError(w, http.StatusBadRequest, "data_sample is required")
		return
	}
	if len(payload.AgentIDs) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "agent_ids is required")
		return
	}

	result, err := h.checker.RunComplianceCheck(r.Context(), payload.DataSample, payload.AgentIDs)
	if err != nil {
		h.respondCheckError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRAGCheck(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		QueryText      string   `json:"query_text"`
		CollectionName string   `json:"collection_name"`
		AgentIDs       []string `json:"agent_ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.QueryText == "" {
		utils.RespondError(w, http.StatusBadRequest, "query_text is required")
		return
	}
	if payload.CollectionName == "" {
		utils.RespondError(w, http.StatusBadRequest, "collection_name is required")
		return
	}
	if len(payload.AgentIDs) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "agent_ids is required")
		return
	}

	result, err := h.checker.RunRAGCheck(r.Context(), payload.QueryText, payload.AgentIDs, payload.CollectionName)
	if err != nil {
		h.respondCheckError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondCheckError(w http.ResponseWriter, err error) {
	if errors.Is(err, complianceService.ErrNoAgents) {
		utils.RespondError(w, http.StatusBadRequest, "no matching agents found")
		return
	}
	log.Printf("[compliance] check failed: %v", err)
	utils.RespondError(w, http.StatusInternalServerError, "compliance check failed")
}
