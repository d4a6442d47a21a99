package store

import (
	"context"
	"sync"
	"time"

	"consentry/internal/consent/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// ChallengeStore holds the verification challenge a pending consent is
// waiting on. Challenges are short-lived and keyed by consent ID; a consent
// has at most one live challenge at a time.
//
// Error Contract:
// - Find returns sentinel.ErrNotFound when no challenge exists
// - Find returns sentinel.ErrExpired when the challenge's deadline passed
type ChallengeStore interface {
	Save(ctx context.Context, ch models.Challenge) error
	Find(ctx context.Context, consentID id.ConsentID) (models.Challenge, error)
	Delete(ctx context.Context, consentID id.ConsentID) error
}

// InMemoryChallengeStore keeps challenges in a map. Suitable for tests and
// single-instance deployments; production uses the Redis-backed store.
type InMemoryChallengeStore struct {
	mu         sync.RWMutex
	challenges map[id.ConsentID]models.Challenge
	now        func() time.Time
}

func NewInMemoryChallengeStore() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{
		challenges: make(map[id.ConsentID]models.Challenge),
		now:        time.Now,
	}
}

// WithChallengeClock pins the expiry clock for tests.
func (s *InMemoryChallengeStore) WithChallengeClock(now func() time.Time) *InMemoryChallengeStore {
	s.now = now
	return s
}

func (s *InMemoryChallengeStore) Save(_ context.Context, ch models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.ConsentID] = ch
	return nil
}

func (s *InMemoryChallengeStore) Find(_ context.Context, consentID id.ConsentID) (models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.challenges[consentID]
	if !ok {
		return models.Challenge{}, sentinel.ErrNotFound
	}
	if !ch.ExpiresAt.IsZero() && ch.ExpiresAt.Before(s.now()) {
		return models.Challenge{}, sentinel.ErrExpired
	}
	return ch, nil
}

func (s *InMemoryChallengeStore) Delete(_ context.Context, consentID id.ConsentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, consentID)
	return nil
}
