package export

import (
	"context"
	"sync"
	"time"

	"consentry/internal/sentinel"
)

// InMemoryStore keeps artifacts in a map. Take deletes on read, so a second
// download with the same ref fails exactly like an expired one.
type InMemoryStore struct {
	mu        sync.Mutex
	artifacts map[string]Artifact
	now       func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		artifacts: make(map[string]Artifact),
		now:       time.Now,
	}
}

// WithClock pins the expiry clock for tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Put(_ context.Context, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.Ref] = a
	return nil
}

func (s *InMemoryStore) Take(_ context.Context, ref string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[ref]
	if !ok {
		return Artifact{}, sentinel.ErrNotFound
	}
	delete(s.artifacts, ref)
	if !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(s.now()) {
		return Artifact{}, sentinel.ErrNotFound
	}
	return a, nil
}
