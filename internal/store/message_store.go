// Package store implements the message and agent-state stores the Agent
// borrows by reference (§4.7, §6): an in-memory reference implementation for
// each, plus SQL-backed variants grounded on the teacher's
// internal/artifacts/sql_repository.go schema/prepared-statement style.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/cascadialabs/turnengine/internal/llm"
)

// RecentOptions bounds GetRecent (§6): MaxMessages and MaxTokens are both
// optional trims; when both are set, MaxMessages is applied first.
type RecentOptions struct {
	MaxMessages int
	MaxTokens   int
}

// CompactOptions controls Compact (§4.7 step 5, §6).
type CompactOptions struct {
	Strategy   string
	KeepRecent int
}

// MessageStore is the per-context ordered message log (§6).
type MessageStore interface {
	GetAll(ctx context.Context, contextID string) ([]llm.Message, error)
	GetRecent(ctx context.Context, contextID string, opts RecentOptions) ([]llm.Message, error)
	Append(ctx context.Context, contextID string, messages []llm.Message) error
	Compact(ctx context.Context, contextID string, opts CompactOptions) error
	Clear(ctx context.Context, contextID string) error

	// PruneExpired clears every context whose log has not been appended to
	// for longer than olderThan, reporting how many were cleared. Used by
	// the cleanup sweep (§5).
	PruneExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// approxTokens is a rough per-message token cost estimate, used only to trim
// GetRecent to a token budget (§6: "token budgeting is the store's concern").
func approxTokens(m llm.Message) int {
	return len(m.Content)/4 + 4
}

// MemoryMessageStore is an in-memory MessageStore, grounded on the teacher's
// MemoryRepository (sync.RWMutex + map keyed by id).
type MemoryMessageStore struct {
	mu           sync.RWMutex
	messages     map[string][]llm.Message
	lastActivity map[string]time.Time
	now          func() time.Time
}

// NewMemoryMessageStore builds an empty MemoryMessageStore.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages:     make(map[string][]llm.Message),
		lastActivity: make(map[string]time.Time),
		now:          time.Now,
	}
}

// GetAll implements MessageStore.
func (s *MemoryMessageStore) GetAll(ctx context.Context, contextID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.messages[contextID]))
	copy(out, s.messages[contextID])
	return out, nil
}

// GetRecent implements MessageStore, trimming by MaxMessages then MaxTokens.
func (s *MemoryMessageStore) GetRecent(ctx context.Context, contextID string, opts RecentOptions) ([]llm.Message, error) {
	all, _ := s.GetAll(ctx, contextID)

	if opts.MaxMessages > 0 && len(all) > opts.MaxMessages {
		all = all[len(all)-opts.MaxMessages:]
	}
	if opts.MaxTokens > 0 {
		total := 0
		start := len(all)
		for i := len(all) - 1; i >= 0; i-- {
			total += approxTokens(all[i])
			if total > opts.MaxTokens {
				break
			}
			start = i
		}
		all = all[start:]
	}
	return all, nil
}

// Append implements MessageStore.
func (s *MemoryMessageStore) Append(ctx context.Context, contextID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[contextID] = append(s.messages[contextID], messages...)
	s.lastActivity[contextID] = s.now()
	return nil
}

// Compact implements MessageStore. The reference implementation drops the
// "summarization" behavior to a conservative keepRecent-tail trim (a real
// summarizer is an external collaborator per the spec's non-goals); the
// strategy name is accepted but only "summarization" is meaningful here.
func (s *MemoryMessageStore) Compact(ctx context.Context, contextID string, opts CompactOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[contextID]
	if opts.KeepRecent <= 0 || len(msgs) <= opts.KeepRecent {
		return nil
	}
	s.messages[contextID] = append([]llm.Message(nil), msgs[len(msgs)-opts.KeepRecent:]...)
	return nil
}

// Clear implements MessageStore.
func (s *MemoryMessageStore) Clear(ctx context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, contextID)
	delete(s.lastActivity, contextID)
	return nil
}

// PruneExpired implements MessageStore.
func (s *MemoryMessageStore) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	cutoff := s.now().Add(-olderThan)
	var expired []string
	for contextID, last := range s.lastActivity {
		if last.Before(cutoff) {
			expired = append(expired, contextID)
		}
	}
	for _, contextID := range expired {
		delete(s.messages, contextID)
		delete(s.lastActivity, contextID)
	}
	s.mu.Unlock()
	return len(expired), nil
}

var _ MessageStore = (*MemoryMessageStore)(nil)
