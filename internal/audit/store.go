package audit

import (
	"context"

	id "consentry/pkg/domain"
)

// Store is the append-only persistence contract for audit events.
// Implementations return nil on success; audit failures never abort the
// business operation that produced the event.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Event, error)
}
