package store

import (
	"context"

	"consentry/internal/consent/models"
	id "consentry/pkg/domain"
)

//go:generate mockgen -destination=mocks/store_mocks.go -package=mocks consentry/internal/consent/store Store,ChallengeStore

// Store is the append-only ledger of consent record versions.
//
// Error Contract:
//   - Find* return sentinel.ErrNotFound when no record exists
//   - AppendVersion returns sentinel.ErrConflict when expectedVersion does not
//     match the latest stored version (optimistic concurrency)
//   - Other failures are wrapped infrastructure errors
type Store interface {
	// Append writes the first version of a new consent record. The store
	// assigns Version from the subject+type history so versions stay
	// monotonic across re-requests.
	Append(ctx context.Context, rec *models.Record) error
	// AppendVersion writes a state transition as a new version row, guarded
	// by compare-and-set on the latest version.
	AppendVersion(ctx context.Context, rec *models.Record, expectedVersion int) error
	// FindByID returns the latest version of the record.
	FindByID(ctx context.Context, consentID id.ConsentID) (*models.Record, error)
	// FindLatest returns the newest record for a subject and type.
	FindLatest(ctx context.Context, subjectID id.SubjectID, t models.Type) (*models.Record, error)
	// ListBySubject returns the latest version of each consent record for the
	// subject, optionally filtered.
	ListBySubject(ctx context.Context, subjectID id.SubjectID, filter *models.RecordFilter) ([]*models.Record, error)
	// ListVersions returns the full append-only history for a subject and type.
	ListVersions(ctx context.Context, subjectID id.SubjectID, t models.Type) ([]*models.Record, error)
}
