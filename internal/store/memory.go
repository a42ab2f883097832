package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dcastillo/docrelay/internal/domain"
)

// Memory is an in-process review store for tests and hosts that do not
// need persistence. Semantics match SQLite: Save replaces the whole
// record, reviews are never deleted.
type Memory struct {
	mu      sync.RWMutex
	reviews map[string]domain.Review
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{reviews: make(map[string]domain.Review)}
}

// Save stores a deep-enough copy of the review so later caller mutations
// don't leak in.
func (m *Memory) Save(_ context.Context, r *domain.Review) error {
	cp := *r
	cp.AuditLog = append([]domain.AuditEntry(nil), r.AuditLog...)
	cp.ChangeSet = copyChangeSet(r.ChangeSet)

	m.mu.Lock()
	m.reviews[r.ID] = cp
	m.mu.Unlock()
	return nil
}

// Get returns one review.
func (m *Memory) Get(_ context.Context, id string) (*domain.Review, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	r, ok := m.reviews[id]
	m.mu.RUnlock()
	if !ok {
		return nil, NewNotFoundError("review", id)
	}

	cp := r
	cp.AuditLog = append([]domain.AuditEntry(nil), r.AuditLog...)
	cp.ChangeSet = copyChangeSet(r.ChangeSet)
	return &cp, nil
}

// List returns reviews ordered by last update, newest first.
func (m *Memory) List(_ context.Context, limit int) ([]domain.Review, error) {
	m.mu.RLock()
	out := make([]domain.Review, 0, len(m.reviews))
	for _, r := range m.reviews {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyChangeSet(cs map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(cs))
	for id, kv := range cs {
		inner := make(map[string]string, len(kv))
		for k, v := range kv {
			inner[k] = v
		}
		out[id] = inner
	}
	return out
}
