package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jitc-genai/conformance/backend/internal/handler/agents"
	chatHandler "github.com/jitc-genai/conformance/backend/internal/handler/chat"
	complianceHandler "github.com/jitc-genai/conformance/backend/internal/handler/compliance"
	debateHandler "github.com/jitc-genai/conformance/backend/internal/handler/debate"
	middlewarePkg "github.com/jitc-genai/conformance/backend/internal/middleware"
	complianceService "github.com/jitc-genai/conformance/backend/internal/service/compliance"
	debateService "github.com/jitc-genai/conformance/backend/internal/service/debate"
	"github.com/jitc-genai/conformance/backend/internal/service/llm"
	"github.com/jitc-genai/conformance/backend/internal/storage"
	"github.com/jitc-genai/conformance/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. hostedModel names the
// backend used by the direct chat endpoint.
func NewRouter(store *storage.Store, checkSvc *complianceService.Service, debateSvc *debateService.Service, completer llm.Completer, hostedModel string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	agentsHandler := agents.New(store)
	checkHandler := complianceHandler.New(checkSvc)
	seqHandler := debateHandler.New(debateSvc, store)
	wsHandler := debateHandler.NewWebSocketHandler(debateSvc)
	directChat := chatHandler.New(completer, store, hostedModel)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		agentsHandler.RegisterRoutes(api)
		checkHandler.RegisterRoutes(api)
		seqHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
		directChat.RegisterRoutes(api)
	})

	return r
}
