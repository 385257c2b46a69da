package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/jitc-genai/conformance/backend/internal/config"
	"github.com/jitc-genai/conformance/backend/internal/handler"
	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	complianceService "github.com/jitc-genai/conformance/backend/internal/service/compliance"
	debateService "github.com/jitc-genai/conformance/backend/internal/service/debate"
	"github.com/jitc-genai/conformance/backend/internal/service/llm"
	ragService "github.com/jitc-genai/conformance/backend/internal/service/rag"
	"github.com/jitc-genai/conformance/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("failed to open storage at %s: %v", cfg.Storage.Path, err)
	}
	defer store.Close()

	if err := store.SeedAgents(ctx, agent.Seed()); err != nil {
		log.Fatalf("failed to seed agents: %v", err)
	}

	var models map[string]model.BaseChatModel
	if cfg.Backends.Enabled() {
		models, err = cfg.Backends.NewChatModels(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat models: %v", err)
			log.Println("continuing without model backends, all evaluations will report errors")
		} else {
			log.Printf("initialized %d model backend(s)", len(models))
		}
	} else {
		log.Println("no model backend credentials configured, all evaluations will report errors")
	}
	gateway := llm.NewGateway(models, cfg.Backends.Timeout)

	retriever := ragService.NewChromaRetriever(cfg.Retrieval.BaseURL, cfg.Retrieval.TopK, cfg.Retrieval.Timeout)
	rag := ragService.NewService(retriever, gateway, store)
	debates := debateService.NewService(store, gateway, rag)
	checks := complianceService.NewService(store, gateway, rag, store, debates)

	router := handler.NewRouter(store, checks, debates, gateway, cfg.Backends.HostedModel())

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("conformance backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
