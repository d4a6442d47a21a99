package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// RedisStore keeps artifacts in Redis. The key TTL enforces expiry and
// GETDEL enforces single use atomically across instances.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func exportKey(ref string) string {
	return fmt.Sprintf("consentry:export:%s", ref)
}

type artifactPayload struct {
	SubjectID   string    `json:"subject_id"`
	Ciphertext  []byte    `json:"ciphertext"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *RedisStore) Put(ctx context.Context, a Artifact) error {
	ttl := a.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	payload, err := json.Marshal(artifactPayload{
		SubjectID:   string(a.SubjectID),
		Ciphertext:  a.Ciphertext,
		ContentType: a.ContentType,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal export artifact: %w", err)
	}
	if err := s.client.Set(ctx, exportKey(a.Ref), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save export artifact: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, ref string) (Artifact, error) {
	raw, err := s.client.GetDel(ctx, exportKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Artifact{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("take export artifact: %w", err)
	}
	var payload artifactPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Artifact{}, fmt.Errorf("decode export artifact: %w", err)
	}
	return Artifact{
		Ref:         ref,
		SubjectID:   id.SubjectID(payload.SubjectID),
		Ciphertext:  payload.Ciphertext,
		ContentType: payload.ContentType,
		CreatedAt:   payload.CreatedAt,
		ExpiresAt:   payload.ExpiresAt,
	}, nil
}
