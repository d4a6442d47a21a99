package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "consentry/pkg/domain-errors"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	codec := NewTokenCodec([]byte("k1")).WithClock(func() time.Time { return now })

	token, err := codec.Sign("ref-abc", now.Add(7*24*time.Hour))
	require.NoError(t, err)

	ref, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ref-abc", ref)
}

func TestTokenExpiryAndTampering(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	codec := NewTokenCodec([]byte("k1")).WithClock(func() time.Time { return now })
	token, err := codec.Sign("ref-abc", now.Add(time.Hour))
	require.NoError(t, err)

	late := NewTokenCodec([]byte("k1")).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	_, err = late.Verify(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "expired token is indistinguishable from a missing export")

	otherKey := NewTokenCodec([]byte("k2")).WithClock(func() time.Time { return now })
	_, err = otherKey.Verify(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = codec.Verify(token + "x")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestMemoryStoreIsSingleUse(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore().WithClock(func() time.Time { return now })

	require.NoError(t, store.Put(context.Background(), Artifact{
		Ref:       "ref-abc",
		ExpiresAt: now.Add(time.Hour),
	}))

	_, err := store.Take(context.Background(), "ref-abc")
	require.NoError(t, err)

	_, err = store.Take(context.Background(), "ref-abc")
	assert.Error(t, err, "the artifact is gone after the first download")
}
