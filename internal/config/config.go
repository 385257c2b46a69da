package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates all service configuration.
type Config struct {
	Server    ServerConfig
	Backends  BackendConfig
	Retrieval RetrievalConfig
	Storage   StorageConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backends, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Backends:  backends,
		Retrieval: retrieval,
		Storage:   loadStorageConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig describes the supported text-completion backends: one
// hosted OpenAI-style model plus one locally-served Ollama model.
type BackendConfig struct {
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OllamaBaseURL string
	OllamaModel   string
	Timeout       time.Duration
}

// HostedModel returns the backend identifier of the hosted model.
func (c BackendConfig) HostedModel() string {
	return c.OpenAIModel
}

// Enabled reports whether at least one backend can be constructed.
func (c BackendConfig) Enabled() bool {
	return c.OpenAIAPIKey != "" || c.OllamaBaseURL != ""
}

// NewChatModels builds one eino chat model per configured backend, keyed by
// lower-cased backend identifier.
func (c BackendConfig) NewChatModels(ctx context.Context) (map[string]model.BaseChatModel, error) {
	models := make(map[string]model.BaseChatModel, 2)

	if c.OpenAIAPIKey != "" {
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  c.OpenAIAPIKey,
			Model:   c.OpenAIModel,
			BaseURL: c.OpenAIBaseURL,
			Timeout: c.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai chat model: %w", err)
		}
		models[strings.ToLower(c.OpenAIModel)] = cm
	}

	if c.OllamaBaseURL != "" {
		cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: c.OllamaBaseURL,
			Model:   c.OllamaModel,
			Timeout: c.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama chat model: %w", err)
		}
		models[strings.ToLower(c.OllamaModel)] = cm
	}

	return models, nil
}

func loadBackendConfig() (BackendConfig, error) {
	timeoutSeconds := 120
	if override, err := parseOptionalIntEnv("BACKEND_TIMEOUT_SECONDS"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return BackendConfig{}, fmt.Errorf("BACKEND_TIMEOUT_SECONDS must be positive, got %d", *override)
		}
		timeoutSeconds = *override
	}

	return BackendConfig{
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPEN_AI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4"),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", ""),
		OllamaBaseURL: getEnvOrDefault("OLLAMA_API", "http://ollama:11434"),
		OllamaModel:   getEnvOrDefault("OLLAMA_MODEL", "tinyllama"),
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// RetrievalConfig describes the ChromaDB retrieval sidecar.
type RetrievalConfig struct {
	BaseURL string
	TopK    int
	Timeout time.Duration
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	topK := 3
	if override, err := parseOptionalIntEnv("N_RESULTS"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return RetrievalConfig{}, fmt.Errorf("N_RESULTS must be positive, got %d", *override)
		}
		topK = *override
	}

	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("RETRIEVAL_TIMEOUT_SECONDS"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}

	return RetrievalConfig{
		BaseURL: getEnvOrDefault("CHROMADB_API", "http://chromadb:8020"),
		TopK:    topK,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// StorageConfig describes the SQLite database location.
type StorageConfig struct {
	Path string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Path: getEnvOrDefault("SQLITE_PATH", "./data/conformance.db"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
