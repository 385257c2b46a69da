package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	"github.com/jitc-genai/conformance/backend/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedThree(t *testing.T, store *storage.Store) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []agent.Agent{
		{ID: "a", Name: "Agent A", ModelName: "gpt-4"},
		{ID: "b", Name: "Agent B", ModelName: "tinyllama"},
		{ID: "c", Name: "Agent C", ModelName: "gpt-4"},
	} {
		if err := store.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent err: %v", err)
		}
	}
}

func TestReplaceSessionRoundTrip(t *testing.T) {
	store := openStore(t)
	seedThree(t, store)
	ctx := context.Background()

	if err := store.ReplaceSession(ctx, "s1", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("ReplaceSession err: %v", err)
	}

	agents, err := store.LoadOrdered(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadOrdered err: %v", err)
	}
	assertOrder(t, agents, []string{"a", "b", "c"})
}

func TestReplaceSessionDiscardsOldMembership(t *testing.T) {
	store := openStore(t)
	seedThree(t, store)
	ctx := context.Background()

	if err := store.ReplaceSession(ctx, "s1", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("ReplaceSession err: %v", err)
	}
	if err := store.ReplaceSession(ctx, "s1", []string{"c", "a"}); err != nil {
		t.Fatalf("second ReplaceSession err: %v", err)
	}

	agents, err := store.LoadOrdered(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadOrdered err: %v", err)
	}
	// Old membership fully discarded: no residual "b".
	assertOrder(t, agents, []string{"c", "a"})
}

func TestLoadOrderedUnknownSession(t *testing.T) {
	store := openStore(t)
	seedThree(t, store)

	agents, err := store.LoadOrdered(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("LoadOrdered err: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("expected empty slice, got %d agents", len(agents))
	}
}

func TestLoadOrderedIdempotent(t *testing.T) {
	store := openStore(t)
	seedThree(t, store)
	ctx := context.Background()

	if err := store.ReplaceSession(ctx, "s1", []string{"b", "a"}); err != nil {
		t.Fatalf("ReplaceSession err: %v", err)
	}

	first, err := store.LoadOrdered(ctx, "s1")
	if err != nil {
		t.Fatalf("first LoadOrdered err: %v", err)
	}
	second, err := store.LoadOrdered(ctx, "s1")
	if err != nil {
		t.Fatalf("second LoadOrdered err: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestAgentLookups(t *testing.T) {
	store := openStore(t)
	seedThree(t, store)
	ctx := context.Background()

	got, err := store.AgentByID(ctx, "b")
	if err != nil {
		t.Fatalf("AgentByID err: %v", err)
	}
	if got.ModelName != "tinyllama" {
		t.Fatalf("unexpected model name: %s", got.ModelName)
	}

	if _, err := store.AgentByID(ctx, "missing"); err != agent.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	agents, err := store.AgentsByIDs(ctx, []string{"c", "a", "missing"})
	if err != nil {
		t.Fatalf("AgentsByIDs err: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
}

func TestSeedAgentsOnlyWhenEmpty(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.SeedAgents(ctx, agent.Seed()); err != nil {
		t.Fatalf("SeedAgents err: %v", err)
	}
	// A second seed must not duplicate or fail on unique constraints.
	if err := store.SeedAgents(ctx, agent.Seed()); err != nil {
		t.Fatalf("second SeedAgents err: %v", err)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents err: %v", err)
	}
	if len(agents) != len(agent.Seed()) {
		t.Fatalf("expected %d agents, got %d", len(agent.Seed()), len(agents))
	}
}

func TestChatHistory(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "is this compliant?", "No\nmissing signature"); err != nil {
		t.Fatalf("Record err: %v", err)
	}
	if err := store.Record(ctx, "second question", "Yes\nfine"); err != nil {
		t.Fatalf("Record err: %v", err)
	}

	records, err := store.History(ctx, 10)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].UserQuery != "second question" {
		t.Fatalf("expected newest first, got %q", records[0].UserQuery)
	}
}

func assertOrder(t *testing.T, agents []agent.Agent, want []string) {
	t.Helper()
	if len(agents) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(agents))
	}
	for i, id := range want {
		if agents[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, agents[i].ID)
		}
	}
}
