// Package memory provides conversational recall behind core.MemoryStore.
// The in-memory implementation is a process-local stand-in for an external
// memory service; per the collaborator contract it never surfaces errors to
// the pipeline.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

type storedEntry struct {
	role    string
	content string
	userID  string
}

// InMemoryStore is a naive process-local core.MemoryStore. Recall is a linear
// scan with case-insensitive word matching over stored entries, scoped by
// chat id. Suitable for tests and single-process deployments; swap for a
// vector-backed service for semantic retrieval.
//
// Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]storedEntry // chatID -> entries in insertion order
	logger  logging.Logger
}

// NewInMemoryStore creates an empty in-memory recall store.
func NewInMemoryStore(logger logging.Logger) *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string][]storedEntry),
		logger:  logging.OrNoOp(logger),
	}
}

// AddMessage implements core.MemoryStore. Never reports failure.
func (m *InMemoryStore) AddMessage(ctx context.Context, chatID, role, content, userID string) {
	if chatID == "" || content == "" {
		m.logger.Debug("memory add skipped", "chat_id", chatID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[chatID] = append(m.entries[chatID], storedEntry{role: role, content: content, userID: userID})
}

// RelevantHistory implements core.MemoryStore. Entries sharing at least one
// query word are preferred; remaining slots are filled with the most recent
// entries. Results are oldest first. Empty on any internal failure.
func (m *InMemoryStore) RelevantHistory(ctx context.Context, chatID, query, userID string, limit int) []core.ContextEntry {
	if limit <= 0 {
		return []core.ContextEntry{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.entries[chatID]
	if len(stored) == 0 {
		return []core.ContextEntry{}
	}

	words := strings.Fields(strings.ToLower(query))
	selected := make([]bool, len(stored))
	count := 0
	for i, entry := range stored {
		if count >= limit {
			break
		}
		if matchesAny(strings.ToLower(entry.content), words) {
			selected[i] = true
			count++
		}
	}
	// Top up with the most recent entries so short queries still get context.
	for i := len(stored) - 1; i >= 0 && count < limit; i-- {
		if !selected[i] {
			selected[i] = true
			count++
		}
	}

	history := make([]core.ContextEntry, 0, count)
	for i, entry := range stored {
		if selected[i] {
			history = append(history, core.ContextEntry{Role: entry.role, Content: entry.content})
		}
	}
	return history
}

func matchesAny(content string, words []string) bool {
	for _, w := range words {
		if len(w) >= 3 && strings.Contains(content, w) {
			return true
		}
	}
	return false
}
