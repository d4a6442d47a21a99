// Package export holds portability export artifacts and the signed download
// tokens that gate access to them. Artifacts are stored encrypted; a token
// is time-limited and single-use.
package export

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// Artifact is one encrypted export blob awaiting download.
type Artifact struct {
	Ref         string
	SubjectID   id.SubjectID
	Ciphertext  []byte
	ContentType string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists artifacts until they are downloaded once or expire.
//
// Error Contract:
//   - Take returns sentinel.ErrNotFound for unknown, expired, or already
//     downloaded refs; the three cases are deliberately indistinguishable.
type Store interface {
	Put(ctx context.Context, a Artifact) error
	// Take atomically retrieves and removes the artifact.
	Take(ctx context.Context, ref string) (Artifact, error)
}

const tokenIssuer = "consentry"

// TokenCodec signs and verifies download tokens. The token carries only the
// artifact ref and the expiry; possession of a valid token plus the
// single-use store is the whole authorization model for downloads.
type TokenCodec struct {
	key []byte
	now func() time.Time
}

func NewTokenCodec(key []byte) *TokenCodec {
	return &TokenCodec{key: key, now: time.Now}
}

// WithClock pins the codec's clock for tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Sign issues a download token for the artifact ref.
func (c *TokenCodec) Sign(ref string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   ref,
		IssuedAt:  jwt.NewNumericDate(c.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign download token")
	}
	return signed, nil
}

// Verify checks a download token and returns the artifact ref it grants.
// Expired or tampered tokens come back as not found so the response does
// not reveal whether the export ever existed.
func (c *TokenCodec) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.key, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(c.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeNotFound, "export not found")
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "export not found")
	}
	return claims.Subject, nil
}
