// Package history records pipeline runs, the stream of ingested alerts and,
// optionally, an archive of past digests searchable by embedding.
package history

import (
	"context"
	"errors"
	"sync"

	"alertagent/internal/alert"
)

// ErrNotFound is returned by Last when no run has been recorded.
var ErrNotFound = errors.New("history: no runs recorded")

// Store keeps pipeline results, newest first.
type Store interface {
	Save(ctx context.Context, result *alert.ProcessingResult) error
	List(ctx context.Context, limit int) ([]alert.ProcessingResult, error)
	Last(ctx context.Context) (*alert.ProcessingResult, error)
}

// MemoryStore is an in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	results []alert.ProcessingResult
	maxLen  int
}

// NewMemoryStore keeps at most maxLen results. maxLen <= 0 means 100.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 100
	}
	return &MemoryStore{maxLen: maxLen}
}

func (m *MemoryStore) Save(_ context.Context, result *alert.ProcessingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, *result)
	if over := len(m.results) - m.maxLen; over > 0 {
		m.results = append([]alert.ProcessingResult(nil), m.results[over:]...)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]alert.ProcessingResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.results) {
		limit = len(m.results)
	}
	out := make([]alert.ProcessingResult, 0, limit)
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.results[i])
	}
	return out, nil
}

func (m *MemoryStore) Last(ctx context.Context) (*alert.ProcessingResult, error) {
	list, _ := m.List(ctx, 1)
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}
