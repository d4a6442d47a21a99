package store

import (
	"context"

	"consentry/internal/dsr/models"
	id "consentry/pkg/domain"
)

// Store persists data subject requests.
//
// Error Contract:
// - FindByID returns sentinel.ErrNotFound when no request exists
// - Save returns sentinel.ErrConflict when the ID is already taken
// - Update returns sentinel.ErrNotFound for an unknown ID
type Store interface {
	Save(ctx context.Context, req *models.Request) error
	Update(ctx context.Context, req *models.Request) error
	// UpdateFrom writes req only while the stored request still holds the
	// expected status. It returns sentinel.ErrConflict when another writer
	// moved the request first, so status transitions cannot be claimed twice.
	UpdateFrom(ctx context.Context, req *models.Request, expected models.Status) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Request, error)
	// ListOpen returns pending and processing requests ordered by submission
	// time, oldest first.
	ListOpen(ctx context.Context) ([]*models.Request, error)
	// ListPending returns up to limit pending requests, oldest first.
	ListPending(ctx context.Context, limit int) ([]*models.Request, error)
}
