package store

import (
	"context"

	"consentry/internal/identity/models"
	id "consentry/pkg/domain"
)

// Store persists subjects.
// Error Contract:
// - Find returns sentinel.ErrNotFound when no subject exists
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	Save(ctx context.Context, subject *models.Subject) error
	Find(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, subjectID id.SubjectID) error
}
