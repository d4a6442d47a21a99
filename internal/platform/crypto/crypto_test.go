package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAEADService_RoundTrip(t *testing.T) {
	svc, err := NewAEAD(nil)
	require.NoError(t, err)

	plaintext := []byte(`{"category":"profile","rows":[{"name":"Ada"}]}`)
	sealed, err := svc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAEADService_RejectsTamperedCiphertext(t *testing.T) {
	svc, err := NewAEAD(nil)
	require.NoError(t, err)

	sealed, err := svc.Encrypt([]byte("export payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = svc.Decrypt(sealed)
	assert.Error(t, err)
}

func TestAEADService_RejectsBadKeyLength(t *testing.T) {
	_, err := NewAEAD([]byte("short"))
	assert.Error(t, err)
}

func TestGenerateSecureToken(t *testing.T) {
	svc, err := NewAEAD(nil)
	require.NoError(t, err)

	a, err := svc.GenerateSecureToken(16)
	require.NoError(t, err)
	b, err := svc.GenerateSecureToken(16)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
