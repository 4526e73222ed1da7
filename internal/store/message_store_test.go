package store

import (
	"context"
	"testing"

	"github.com/cascadialabs/turnengine/internal/llm"
)

func TestMemoryMessageStoreAppendAndGetAll(t *testing.T) {
	s := NewMemoryMessageStore()
	ctx := context.Background()

	if err := s.Append(ctx, "ctx1", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "ctx1", []llm.Message{{Role: llm.RoleAssistant, Content: "Hello"}}); err != nil {
		t.Fatal(err)
	}

	all, err := s.GetAll(ctx, "ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Content != "Hi" || all[1].Content != "Hello" {
		t.Fatalf("unexpected messages: %+v", all)
	}
}

func TestMemoryMessageStoreGetRecentByMaxMessages(t *testing.T) {
	s := NewMemoryMessageStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, "ctx1", []llm.Message{{Role: llm.RoleUser, Content: "m"}})
	}
	recent, err := s.GetRecent(ctx, "ctx1", RecentOptions{MaxMessages: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
}

func TestMemoryMessageStoreCompactKeepsRecentTail(t *testing.T) {
	s := NewMemoryMessageStore()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		s.Append(ctx, "ctx1", []llm.Message{{Role: llm.RoleUser, Content: "m"}})
	}
	if err := s.Compact(ctx, "ctx1", CompactOptions{Strategy: "summarization", KeepRecent: 3}); err != nil {
		t.Fatal(err)
	}
	all, _ := s.GetAll(ctx, "ctx1")
	if len(all) != 3 {
		t.Fatalf("expected 3 messages after compact, got %d", len(all))
	}
}

func TestMemoryMessageStoreClear(t *testing.T) {
	s := NewMemoryMessageStore()
	ctx := context.Background()
	s.Append(ctx, "ctx1", []llm.Message{{Role: llm.RoleUser, Content: "Hi"}})
	if err := s.Clear(ctx, "ctx1"); err != nil {
		t.Fatal(err)
	}
	all, _ := s.GetAll(ctx, "ctx1")
	if len(all) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(all))
	}
}

func TestMemoryAgentStoreLoadMissingReturnsNilNotError(t *testing.T) {
	s := NewMemoryAgentStore()
	state, err := s.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if state != nil {
		t.Fatal("expected nil state for missing contextId")
	}
}

func TestMemoryAgentStoreSaveAndLoad(t *testing.T) {
	s := NewMemoryAgentStore()
	ctx := context.Background()
	want := AgentState{Status: AgentBusy, TurnCount: 2}
	if err := s.Save(ctx, "ctx1", want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != want.Status || got.TurnCount != want.TurnCount {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
