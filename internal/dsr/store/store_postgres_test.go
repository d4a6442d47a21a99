package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/internal/dsr/models"
)

func TestIsRequestIDTaken(t *testing.T) {
	dup := fmt.Errorf("save request: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, isRequestIDTaken(dup))

	assert.False(t, isRequestIDTaken(errors.New("connection refused")))
	assert.False(t, isRequestIDTaken(&pgconn.PgError{Code: "40001"}))
}

func TestMarshalRequestJSONKeepsUnsetColumnsNull(t *testing.T) {
	corrections, result, err := marshalRequestJSON(&models.Request{})
	require.NoError(t, err)
	assert.Nil(t, corrections)
	assert.Nil(t, result)

	corrections, result, err = marshalRequestJSON(&models.Request{
		Corrections: map[string]string{"email": "new@example.org"},
		Result:      &models.Result{UpdatedFields: []string{"email"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"new@example.org"}`, string(corrections))
	assert.Contains(t, string(result), "updated_fields")
}
