package debate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	debateModel "github.com/jitc-genai/conformance/backend/internal/model/debate"
)

// memorySessions is an in-memory SessionStore with replace-all semantics.
type memorySessions struct {
	mu       sync.Mutex
	agents   map[string]agent.Agent
	sessions map[string][]string
}

func newMemorySessions(agents ...agent.Agent) *memorySessions {
	byID := make(map[string]agent.Agent, len(agents))
	for _, ag := range agents {
		byID[ag.ID] = ag
	}
	return &memorySessions{agents: byID, sessions: make(map[string][]string)}
}

func (m *memorySessions) ReplaceSession(_ context.Context, sessionID string, agentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append([]string(nil), agentIDs...)
	return nil
}

func (m *memorySessions) LoadOrdered(_ context.Context, sessionID string) ([]agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.sessions[sessionID]
	out := make([]agent.Agent, 0, len(ids))
	for _, id := range ids {
		if ag, ok := m.agents[id]; ok {
			out = append(out, ag)
		}
	}
	return out, nil
}

// scriptedCompleter replies per backend id and records every prompt.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	prompts []string
}

func (c *scriptedCompleter) Complete(_ context.Context, backendID, _, userPrompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, userPrompt)
	if c.err != nil {
		return "", c.err
	}
	if reply, ok := c.replies[backendID]; ok {
		return reply, nil
	}
	return "Yes\ndefault", nil
}

type scriptedRAG struct {
	mu      sync.Mutex
	reply   string
	err     error
	queries []string
}

func (r *scriptedRAG) Query(_ context.Context, _, queryText, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, queryText)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

func threeAgents() []agent.Agent {
	return []agent.Agent{
		{ID: "a1", Name: "Alpha", ModelName: "model-a"},
		{ID: "a2", Name: "Beta", ModelName: "model-b"},
		{ID: "a3", Name: "Gamma", ModelName: "model-c"},
	}
}

func TestRunDebateKeysByName(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	completer := &scriptedCompleter{replies: map[string]string{
		"model-a": "Yes\nfine",
		"model-b": "No\nmissing field",
		"model-c": "Maybe",
	}}
	svc := NewService(sessions, completer, &scriptedRAG{})
	ctx := context.Background()

	if err := sessions.ReplaceSession(ctx, "s1", []string{"a1", "a2", "a3"}); err != nil {
		t.Fatalf("ReplaceSession err: %v", err)
	}

	results, err := svc.RunDebate(ctx, "s1", "sample data")
	if err != nil {
		t.Fatalf("RunDebate err: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(results))
	}
	if results["Beta"] != "No\nmissing field" {
		t.Fatalf("unexpected response for Beta: %q", results["Beta"])
	}
}

func TestRunDebateEmptySession(t *testing.T) {
	svc := NewService(newMemorySessions(), &scriptedCompleter{}, &scriptedRAG{})

	if _, err := svc.RunDebate(context.Background(), "unknown", "data"); !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession, got %v", err)
	}
}

func TestRunDebateContainsAgentFailure(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	completer := &scriptedCompleter{err: errors.New("backend down")}
	svc := NewService(sessions, completer, &scriptedRAG{})
	ctx := context.Background()

	if err := sessions.ReplaceSession(ctx, "s1", []string{"a1", "a2"}); err != nil {
		t.Fatalf("ReplaceSession err: %v", err)
	}

	results, err := svc.RunDebate(ctx, "s1", "sample")
	if err != nil {
		t.Fatalf("RunDebate err: %v", err)
	}
	// Every slot is filled even when all backends fail.
	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}
	for name, resp := range results {
		if !strings.HasPrefix(resp, "Error: ") {
			t.Fatalf("expected error text for %s, got %q", name, resp)
		}
	}
}

func TestSequenceAccumulatesContext(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	completer := &scriptedCompleter{replies: map[string]string{
		"model-a": "R1",
		"model-b": "R2",
		"model-c": "R3",
	}}
	svc := NewService(sessions, completer, &scriptedRAG{})

	sessionID, chain, err := svc.RunDebateSequence(context.Background(), "", []string{"a1", "a2", "a3"}, "the sample")
	if err != nil {
		t.Fatalf("RunDebateSequence err: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected generated session id")
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(chain))
	}
	if len(completer.prompts) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(completer.prompts))
	}

	// Agent 2 sees R1; agent 3 sees R1 then R2, in that order.
	second := completer.prompts[1]
	if !strings.Contains(second, "R1") {
		t.Fatalf("second prompt missing R1: %q", second)
	}
	third := completer.prompts[2]
	r1 := strings.Index(third, "R1")
	r2 := strings.Index(third, "R2")
	if r1 < 0 || r2 < 0 || r1 > r2 {
		t.Fatalf("third prompt must contain R1 before R2: %q", third)
	}
	if !strings.Contains(completer.prompts[0], "Initial data:\nthe sample") {
		t.Fatalf("first prompt missing seed data: %q", completer.prompts[0])
	}
}

func TestSequenceChainOrderMatchesCallerOrder(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	svc := NewService(sessions, &scriptedCompleter{replies: map[string]string{}}, &scriptedRAG{})
	ctx := context.Background()

	sessionID, chain, err := svc.RunDebateSequence(ctx, "fixed-session", []string{"a3", "a1"}, "data")
	if err != nil {
		t.Fatalf("RunDebateSequence err: %v", err)
	}
	if sessionID != "fixed-session" {
		t.Fatalf("expected caller session id, got %s", sessionID)
	}
	if chain[0].AgentID != "a3" || chain[1].AgentID != "a1" {
		t.Fatalf("chain order mismatch: %s, %s", chain[0].AgentID, chain[1].AgentID)
	}

	// The stored membership reproduces the same order on reload.
	agents, err := sessions.LoadOrdered(ctx, "fixed-session")
	if err != nil {
		t.Fatalf("LoadOrdered err: %v", err)
	}
	if agents[0].ID != "a3" || agents[1].ID != "a1" {
		t.Fatalf("stored order mismatch: %s, %s", agents[0].ID, agents[1].ID)
	}
}

func TestSequenceRejectsEmptyAgentList(t *testing.T) {
	svc := NewService(newMemorySessions(), &scriptedCompleter{}, &scriptedRAG{})

	if _, _, err := svc.RunDebateSequence(context.Background(), "", nil, "data"); !errors.Is(err, ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestSequenceFailedTurnFillsSlot(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	completer := &scriptedCompleter{err: errors.New("timeout")}
	svc := NewService(sessions, completer, &scriptedRAG{})

	_, chain, err := svc.RunDebateSequence(context.Background(), "", []string{"a1", "a2"}, "data")
	if err != nil {
		t.Fatalf("RunDebateSequence err: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected full chain despite failures, got %d entries", len(chain))
	}
	for _, entry := range chain {
		if !strings.HasPrefix(entry.Response, "Error: ") {
			t.Fatalf("expected error text in slot, got %q", entry.Response)
		}
	}
}

func TestRAGSequenceRetrievesAgainstAccumulatedContext(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	ragSvc := &scriptedRAG{reply: "No\nper retrieved standard"}
	svc := NewService(sessions, &scriptedCompleter{}, ragSvc)

	_, chain, err := svc.RunRAGDebateSequence(context.Background(), "", []string{"a1", "a2"}, "the sample", "standards")
	if err != nil {
		t.Fatalf("RunRAGDebateSequence err: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(chain))
	}
	if len(ragSvc.queries) != 2 {
		t.Fatalf("expected 2 retrieval queries, got %d", len(ragSvc.queries))
	}
	// The second turn's retrieval query carries the first turn's response.
	if !strings.Contains(ragSvc.queries[1], "No\nper retrieved standard") {
		t.Fatalf("second query missing prior response: %q", ragSvc.queries[1])
	}
}

func TestStreamDebateSequenceEmitsEntriesInOrder(t *testing.T) {
	sessions := newMemorySessions(threeAgents()...)
	svc := NewService(sessions, &scriptedCompleter{replies: map[string]string{}}, &scriptedRAG{})

	var seen []string
	_, chain, err := svc.StreamDebateSequence(context.Background(), "", []string{"a2", "a3"}, "data", "",
		func(entry debateModel.ChainEntry) {
			seen = append(seen, entry.AgentID)
		})
	if err != nil {
		t.Fatalf("StreamDebateSequence err: %v", err)
	}
	if len(seen) != len(chain) {
		t.Fatalf("callback count %d != chain length %d", len(seen), len(chain))
	}
	if seen[0] != "a2" || seen[1] != "a3" {
		t.Fatalf("entries emitted out of order: %v", seen)
	}
}
