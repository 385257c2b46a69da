package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var (
	// ErrUnrecognizedModel means the agent references a backend identifier
	// outside the configured set.
	ErrUnrecognizedModel = errors.New("model not recognized")
	// ErrBackendUnreachable means the network or process call to a backend
	// failed. No retries are attempted.
	ErrBackendUnreachable = errors.New("model backend unreachable")
)

// Completer is the text-completion boundary consumed by the orchestration
// services. Implementations must return a typed error rather than panic so
// that one misconfigured agent never aborts a concurrent batch.
type Completer interface {
	Complete(ctx context.Context, backendID, systemPrompt, userPrompt string) (string, error)
}

// Gateway maps backend identifiers to eino chat models and runs synchronous
// completions against them.
type Gateway struct {
	models  map[string]model.BaseChatModel
	timeout time.Duration
}

// NewGateway builds a gateway over the supplied models, keyed
// case-insensitively by backend identifier. A per-call timeout of zero
// disables the deadline.
func NewGateway(models map[string]model.BaseChatModel, timeout time.Duration) *Gateway {
	normalized := make(map[string]model.BaseChatModel, len(models))
	for id, cm := range models {
		normalized[strings.ToLower(strings.TrimSpace(id))] = cm
	}
	return &Gateway{models: normalized, timeout: timeout}
}

// Supports reports whether the backend identifier resolves to a configured
// model.
func (g *Gateway) Supports(backendID string) bool {
	_, ok := g.models[strings.ToLower(strings.TrimSpace(backendID))]
	return ok
}

// Complete runs one completion against the named backend. The system prompt
// may be empty. Errors are typed: ErrUnrecognizedModel for an unknown
// backend id, ErrBackendUnreachable for transport or backend failures.
func (g *Gateway) Complete(ctx context.Context, backendID, systemPrompt, userPrompt string) (string, error) {
	cm, ok := g.models[strings.ToLower(strings.TrimSpace(backendID))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedModel, backendID)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := make([]*schema.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	messages = append(messages, schema.UserMessage(userPrompt))

	response, err := cm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrBackendUnreachable, backendID, err)
	}

	return strings.TrimSpace(response.Content), nil
}

// ErrorText renders a gateway failure as the human-readable response text
// placed in a failed agent's slot, so downstream verdict parsing always
// receives a string.
func ErrorText(backendID string, err error) string {
	if errors.Is(err, ErrUnrecognizedModel) {
		return fmt.Sprintf("Error: Model '%s' not recognized.", backendID)
	}
	return fmt.Sprintf("Error: %v", err)
}
