package compliance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/jitc-genai/conformance/backend/internal/analysis/verdict"
	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
	"github.com/jitc-genai/conformance/backend/internal/service/debate"
	"github.com/jitc-genai/conformance/backend/internal/service/llm"
)

// ErrNoAgents means none of the requested agent ids resolved to a stored
// definition.
var ErrNoAgents = errors.New("no matching agents found")

// RAGQuerier answers a retrieval-augmented query with the given backend.
type RAGQuerier interface {
	Query(ctx context.Context, backendID, queryText, collection string) (string, error)
}

// Debater runs the escalation debate over a stored session.
type Debater interface {
	RunDebate(ctx context.Context, sessionID, subject string) (map[string]string, error)
	RunRAGDebate(ctx context.Context, sessionID, subject, collection string) (map[string]string, error)
}

// Service is the top-level compliance orchestrator: it fans an identical
// evaluation out to the selected agents, aggregates their verdicts and
// escalates disagreement into a parallel debate.
type Service struct {
	registry  agent.Registry
	completer llm.Completer
	rag       RAGQuerier
	sessions  debate.SessionStore
	debates   Debater
}

// NewService wires the orchestrator to its collaborators. All dependencies
// are injected; nothing here is a process-wide singleton.
func NewService(registry agent.Registry, completer llm.Completer, rag RAGQuerier, sessions debate.SessionStore, debates Debater) *Service {
	return &Service{
		registry:  registry,
		completer: completer,
		rag:       rag,
		sessions:  sessions,
		debates:   debates,
	}
}

// RunComplianceCheck verifies the subject with the selected agents and, on
// anything short of unanimous parseable agreement, stores a fresh debate
// session and runs the parallel debate. Each call is a fresh adjudication:
// repeating the same inputs yields a new session id and a new debate.
func (s *Service) RunComplianceCheck(ctx context.Context, subject string, agentIDs []string) (debateModel.CheckResult, error) {
	return s.runCheck(ctx, subject, agentIDs, "")
}

// RunRAGCheck is the retrieval-augmented variant: every agent step is
// preceded by retrieval against the named collection.
func (s *Service) RunRAGCheck(ctx context.Context, subject string, agentIDs []string, collection string) (debateModel.CheckResult, error) {
	return s.runCheck(ctx, subject, agentIDs, collection)
}

func (s *Service) runCheck(ctx context.Context, subject string, agentIDs []string, collection string) (debateModel.CheckResult, error) {
	agents, err := s.loadAgents(ctx, agentIDs)
	if err != nil {
		return debateModel.CheckResult{}, err
	}

	var details map[int]verdict.Result
	if collection == "" {
		details = s.VerifyAll(ctx, agents, subject)
	} else {
		details = s.VerifyAllRAG(ctx, agents, subject, collection)
	}

	if AllCompliant(details) {
		log.Printf("[compliance] unanimous pass for %d agents", len(agents))
		return debateModel.CheckResult{OverallCompliance: true, Details: details}, nil
	}

	sessionID := uuid.NewString()
	orderedIDs := make([]string, len(agents))
	for i, ag := range agents {
		orderedIDs[i] = ag.ID
	}
	if err := s.sessions.ReplaceSession(ctx, sessionID, orderedIDs); err != nil {
		return debateModel.CheckResult{}, fmt.Errorf("store debate session: %w", err)
	}

	var debateResults map[string]string
	if collection == "" {
		debateResults, err = s.debates.RunDebate(ctx, sessionID, subject)
	} else {
		debateResults, err = s.debates.RunRAGDebate(ctx, sessionID, subject, collection)
	}
	if err != nil {
		return debateModel.CheckResult{}, fmt.Errorf("run escalation debate: %w", err)
	}

	log.Printf("[compliance] escalated to debate session=%s, agents=%d", sessionID, len(agents))
	return debateModel.CheckResult{
		OverallCompliance: false,
		Details:           details,
		DebateResults:     debateResults,
		SessionID:         sessionID,
	}, nil
}

// VerifyAll runs one verification task per agent concurrently and joins
// all outcomes. The result map is keyed by the agent's position in the
// input list, not by agent id, and always holds one entry per agent: a
// failed completion fills its slot with parsed error text instead of
// aborting the batch.
func (s *Service) VerifyAll(ctx context.Context, agents []agent.Agent, subject string) map[int]verdict.Result {
	return s.verifyEach(agents, func(ag agent.Agent) verdict.Result {
		raw, err := s.completer.Complete(ctx, ag.ModelName, ag.SystemPrompt, ag.RenderUserPrompt(subject))
		if err != nil {
			raw = llm.ErrorText(ag.ModelName, err)
		}
		return verdict.Parse(raw)
	})
}

// VerifyAllRAG is VerifyAll with retrieval-augmented prompts: each agent's
// answer is grounded in chunks retrieved from the named collection.
func (s *Service) VerifyAllRAG(ctx context.Context, agents []agent.Agent, subject, collection string) map[int]verdict.Result {
	return s.verifyEach(agents, func(ag agent.Agent) verdict.Result {
		raw, err := s.rag.Query(ctx, ag.ModelName, subject, collection)
		if err != nil {
			raw = fmt.Sprintf("Error: %v", err)
		}
		return verdict.Parse(raw)
	})
}

func (s *Service) verifyEach(agents []agent.Agent, task func(agent.Agent) verdict.Result) map[int]verdict.Result {
	results := make([]verdict.Result, len(agents))
	var wg sync.WaitGroup
	for i, ag := range agents {
		wg.Add(1)
		go func(i int, ag agent.Agent) {
			defer wg.Done()
			results[i] = task(ag)
		}(i, ag)
	}
	wg.Wait()

	out := make(map[int]verdict.Result, len(results))
	for i, res := range results {
		out[i] = res
	}
	return out
}

// AllCompliant applies the escalation rule: the overall verdict is
// compliant only when at least one verdict parsed and every parsed verdict
// is a yes. All-unknown batches are treated as non-compliant and escalate.
func AllCompliant(details map[int]verdict.Result) bool {
	parsed := false
	for _, res := range details {
		if res.Compliant == nil {
			continue
		}
		if !*res.Compliant {
			return false
		}
		parsed = true
	}
	return parsed
}

// loadAgents resolves agent ids to full records, re-sorted to the caller's
// order. Unknown ids are skipped silently; an entirely unknown list fails.
func (s *Service) loadAgents(ctx context.Context, agentIDs []string) ([]agent.Agent, error) {
	found, err := s.registry.AgentsByIDs(ctx, agentIDs)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	byID := make(map[string]agent.Agent, len(found))
	for _, ag := range found {
		byID[ag.ID] = ag
	}

	ordered := make([]agent.Agent, 0, len(agentIDs))
	for _, id := range agentIDs {
		if ag, ok := byID[id]; ok {
			ordered = append(ordered, ag)
		}
	}
	if len(ordered) == 0 {
		return nil, ErrNoAgents
	}
	return ordered, nil
}
