package rag

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jitc-genai/conformance/backend/internal/service/llm"
)

// NoContextFound is returned verbatim when retrieval yields nothing. The
// caller-visible contract distinguishes this from a transport failure: an
// empty collection is a valid answer, a dead retrieval service is an error.
const NoContextFound = "No relevant context found in the database."

// ErrRetrievalFailure wraps transport-level retrieval errors.
var ErrRetrievalFailure = errors.New("retrieval failed")

const answerSystemPrompt = "You are a knowledgeable and helpful assistant."

// HistorySink records answered queries as a side effect. Failures are
// logged and never propagated; the core does not depend on the sink.
type HistorySink interface {
	Record(ctx context.Context, userQuery, response string) error
}

// Service answers retrieval-augmented queries: retrieve, build context,
// complete against the requested backend.
type Service struct {
	retriever Retriever
	completer llm.Completer
	history   HistorySink
}

// NewService wires the retrieval gateway to the completion gateway. The
// history sink may be nil.
func NewService(retriever Retriever, completer llm.Completer, history HistorySink) *Service {
	return &Service{
		retriever: retriever,
		completer: completer,
		history:   history,
	}
}

// Query answers queryText using context retrieved from the named
// collection, completed by the agent's backend. When retrieval returns no
// chunks the model is not called and NoContextFound is returned.
func (s *Service) Query(ctx context.Context, backendID, queryText, collection string) (string, error) {
	docs, err := s.retriever.Retrieve(ctx, queryText, collection)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRetrievalFailure, err)
	}

	contextText := BuildContext(docs)
	if contextText == "" {
		return NoContextFound, nil
	}

	prompt := fmt.Sprintf(
		"You are a helpful assistant that answers questions based on provided context.\n\n"+
			"Context:\n%s\n\n"+
			"Question: %s\n\n"+
			"Answer:", contextText, queryText)

	answer, err := s.completer.Complete(ctx, backendID, answerSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	s.record(ctx, queryText, answer)
	return answer, nil
}

func (s *Service) record(ctx context.Context, userQuery, response string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, userQuery, response); err != nil {
		log.Printf("[rag] failed to record chat history: %v", err)
	}
}
