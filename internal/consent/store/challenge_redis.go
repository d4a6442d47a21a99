package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"consentry/internal/consent/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// RedisChallengeStore persists challenges in Redis with a TTL matching the
// challenge deadline, so expiry needs no sweep: the key simply vanishes.
type RedisChallengeStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, now: time.Now}
}

func challengeKey(consentID id.ConsentID) string {
	return fmt.Sprintf("consentry:challenge:%s", consentID)
}

type challengePayload struct {
	Reference string                      `json:"reference"`
	Code      string                      `json:"code"`
	Methods   []models.VerificationMethod `json:"methods"`
	ExpiresAt time.Time                   `json:"expires_at"`
}

func (s *RedisChallengeStore) Save(ctx context.Context, ch models.Challenge) error {
	payload, err := json.Marshal(challengePayload{
		Reference: ch.Reference,
		Code:      ch.Code,
		Methods:   ch.Methods,
		ExpiresAt: ch.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	ttl := ch.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	if err := s.client.Set(ctx, challengeKey(ch.ConsentID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Find(ctx context.Context, consentID id.ConsentID) (models.Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKey(consentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Redis expired keys are indistinguishable from never-existed ones.
		return models.Challenge{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Challenge{}, fmt.Errorf("find challenge: %w", err)
	}
	var payload challengePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return models.Challenge{
		ConsentID: consentID,
		Reference: payload.Reference,
		Code:      payload.Code,
		Methods:   payload.Methods,
		ExpiresAt: payload.ExpiresAt,
	}, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, consentID id.ConsentID) error {
	if err := s.client.Del(ctx, challengeKey(consentID)).Err(); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}
