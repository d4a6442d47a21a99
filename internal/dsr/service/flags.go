package service

import (
	"context"
	"time"

	"consentry/internal/datacat"
	id "consentry/pkg/domain"
)

// CategoryFlagRecorder stores restriction and objection flags as rows in
// the processing-metadata category, so they surface in access responses and
// fall under erasure like any other category data.
type CategoryFlagRecorder struct {
	handler *datacat.MemoryHandler
}

func NewCategoryFlagRecorder(handler *datacat.MemoryHandler) *CategoryFlagRecorder {
	return &CategoryFlagRecorder{handler: handler}
}

func (r *CategoryFlagRecorder) Record(_ context.Context, subjectID id.SubjectID, kind, note string, at time.Time) error {
	r.handler.Put(string(subjectID), map[string]any{
		"subject_id":  string(subjectID),
		"flag":        kind,
		"note":        note,
		"recorded_at": at,
	})
	return nil
}
