package debate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
	"github.com/jitc-genai/conformance/backend/internal/service/llm"
)

var (
	// ErrEmptySession means a debate was requested against a session id
	// with zero stored members. This is a hard failure, never an empty
	// result: an empty debate is indistinguishable from a unanimous
	// no-show, so the orchestrator refuses to run it.
	ErrEmptySession = errors.New("debate session has no agents")
	// ErrNoAgents means a sequence was requested with an empty agent list.
	ErrNoAgents = errors.New("at least one agent is required")
)

// SessionStore persists ordered debate-session membership. ReplaceSession
// must atomically discard any existing rows for the session before
// inserting the new ordered set; LoadOrdered must yield an empty slice,
// not an error, for an unknown session id.
type SessionStore interface {
	ReplaceSession(ctx context.Context, sessionID string, agentIDs []string) error
	LoadOrdered(ctx context.Context, sessionID string) ([]agent.Agent, error)
}

// RAGQuerier answers a retrieval-augmented query with the given backend.
type RAGQuerier interface {
	Query(ctx context.Context, backendID, queryText, collection string) (string, error)
}

// Service drives multi-agent debates in two modes: parallel (every agent
// judges the same static prompt concurrently) and sequential (each agent
// sees all prior agents' responses before answering).
type Service struct {
	sessions  SessionStore
	completer llm.Completer
	rag       RAGQuerier
}

// NewService wires the debate orchestrator to its collaborators.
func NewService(sessions SessionStore, completer llm.Completer, rag RAGQuerier) *Service {
	return &Service{
		sessions:  sessions,
		completer: completer,
		rag:       rag,
	}
}

// RunDebate re-judges the subject with every member of the stored session,
// one concurrent task per agent. Results are keyed by agent display name,
// unlike verification which keys by input index. Callers depend on both
// shapes.
func (s *Service) RunDebate(ctx context.Context, sessionID, subject string) (map[string]string, error) {
	agents, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	responses := s.fanOut(agents, func(ag agent.Agent) string {
		prompt := fmt.Sprintf(
			"Agent %s is evaluating this data again:\n%s\n\n"+
				"Do you find this compliant? Answer 'Yes' or 'No' and explain why.",
			ag.Name, subject)
		raw, err := s.completer.Complete(ctx, ag.ModelName, "", prompt)
		if err != nil {
			return llm.ErrorText(ag.ModelName, err)
		}
		return raw
	})

	return keyByName(agents, responses), nil
}

// RunRAGDebate is the retrieval-augmented parallel debate: every member
// re-retrieves against the subject and answers independently.
func (s *Service) RunRAGDebate(ctx context.Context, sessionID, subject, collection string) (map[string]string, error) {
	agents, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	responses := s.fanOut(agents, func(ag agent.Agent) string {
		raw, err := s.rag.Query(ctx, ag.ModelName, subject, collection)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return raw
	})

	return keyByName(agents, responses), nil
}

// RunDebateSequence runs an ordered, context-accumulating debate chain:
// membership is stored (replace-all) under sessionID, then each agent in
// turn sees the seed subject plus every prior response. A blank sessionID
// gets a freshly generated one. Returns the session id and the chain in
// caller order.
func (s *Service) RunDebateSequence(ctx context.Context, sessionID string, agentIDs []string, subject string) (string, []debateModel.ChainEntry, error) {
	return s.runSequence(ctx, sessionID, agentIDs, subject, "", nil)
}

// RunRAGDebateSequence is the retrieval-augmented sequence: each turn
// re-retrieves against the accumulated context, so relevant material can
// shift from agent to agent.
func (s *Service) RunRAGDebateSequence(ctx context.Context, sessionID string, agentIDs []string, subject, collection string) (string, []debateModel.ChainEntry, error) {
	return s.runSequence(ctx, sessionID, agentIDs, subject, collection, nil)
}

// StreamDebateSequence behaves like the sequence runners but invokes
// onEntry after each turn, for SSE/WebSocket progress streaming. An empty
// collection selects the plain chain.
func (s *Service) StreamDebateSequence(ctx context.Context, sessionID string, agentIDs []string, subject, collection string, onEntry func(debateModel.ChainEntry)) (string, []debateModel.ChainEntry, error) {
	return s.runSequence(ctx, sessionID, agentIDs, subject, collection, onEntry)
}

func (s *Service) runSequence(ctx context.Context, sessionID string, agentIDs []string, subject, collection string, onEntry func(debateModel.ChainEntry)) (string, []debateModel.ChainEntry, error) {
	if len(agentIDs) == 0 {
		return "", nil, ErrNoAgents
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := s.sessions.ReplaceSession(ctx, sessionID, agentIDs); err != nil {
		return "", nil, fmt.Errorf("store session membership: %w", err)
	}

	agents, err := s.sessions.LoadOrdered(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if len(agents) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrEmptySession, sessionID)
	}

	contextText := fmt.Sprintf("Initial data:\n%s\n", subject)
	chain := make([]debateModel.ChainEntry, 0, len(agents))

	for _, ag := range agents {
		if err := ctx.Err(); err != nil {
			return sessionID, chain, err
		}

		response := s.runTurn(ctx, ag, contextText, collection)

		entry := debateModel.ChainEntry{
			AgentID:   ag.ID,
			AgentName: ag.Name,
			Response:  response,
		}
		chain = append(chain, entry)
		if onEntry != nil {
			onEntry(entry)
		}

		contextText += fmt.Sprintf("\n---\nAgent %s responded:\n%s\n", ag.Name, response)
	}

	log.Printf("[debate] sequence complete for session=%s, turns=%d", sessionID, len(chain))
	return sessionID, chain, nil
}

// runTurn executes one chain step. A failed turn still fills its slot with
// the error text so the chain format never has a missing response.
func (s *Service) runTurn(ctx context.Context, ag agent.Agent, contextText, collection string) string {
	if collection != "" {
		prompt := fmt.Sprintf(
			"You have the following context:\n%s\n"+
				"Please provide your answer. If you have a final stance (Yes or No), "+
				"include it on the first line, followed by your reasoning.", contextText)
		raw, err := s.rag.Query(ctx, ag.ModelName, prompt, collection)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return raw
	}

	prompt := fmt.Sprintf(
		"%s\nAgent %s, please respond with 'Yes' or 'No' plus reasoning.\n"+
			"If you are second or later in the sequence, you can see the prior responses above.\n",
		contextText, ag.Name)
	raw, err := s.completer.Complete(ctx, ag.ModelName, "", prompt)
	if err != nil {
		return llm.ErrorText(ag.ModelName, err)
	}
	return raw
}

func (s *Service) loadSession(ctx context.Context, sessionID string) ([]agent.Agent, error) {
	agents, err := s.sessions.LoadOrdered(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySession, sessionID)
	}
	return agents, nil
}

// fanOut runs one task per agent concurrently and joins all outcomes.
// Results land in the slot matching the agent's position, regardless of
// completion order; a single agent's failure never aborts its siblings.
func (s *Service) fanOut(agents []agent.Agent, task func(agent.Agent) string) []string {
	responses := make([]string, len(agents))
	var wg sync.WaitGroup
	for i, ag := range agents {
		wg.Add(1)
		go func(i int, ag agent.Agent) {
			defer wg.Done()
			responses[i] = task(ag)
		}(i, ag)
	}
	wg.Wait()
	return responses
}

func keyByName(agents []agent.Agent, responses []string) map[string]string {
	out := make(map[string]string, len(agents))
	for i, ag := range agents {
		out[ag.Name] = responses[i]
	}
	return out
}
