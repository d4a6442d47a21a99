// Package datacat models the data categories held about a subject. The
// revocation and erasure engines iterate a registry of category handlers
// instead of hardcoding table names, which keeps the all-or-nothing
// guarantee in one transactional wrapper.
package datacat

import "context"

// Category names a class of subject data.
type Category string

const (
	CategoryIdentity           Category = "identity"
	CategoryProfile            Category = "profile"
	CategoryPreferences        Category = "preferences"
	CategoryLearningSessions   Category = "learning_sessions"
	CategoryAssessmentAttempts Category = "assessment_attempts"
	CategoryFinancialRecords   Category = "financial_records"
	CategoryAuditLogs          Category = "audit_logs"
	CategoryProcessingMetadata Category = "processing_metadata"
)

// RestoreFunc undoes a handler's changes for one subject; unit-of-work
// compensation when a later handler fails.
type RestoreFunc func(ctx context.Context) error

// Handler owns one category of subject data.
type Handler interface {
	Category() Category
	// SubjectProvided reports whether this category holds data the subject
	// supplied themselves (portability exports only include those) as
	// opposed to system-derived data.
	SubjectProvided() bool
	// Collect returns the subject's rows with internal-only fields already
	// excluded. Safe to expose in access exports.
	Collect(ctx context.Context, subjectID string) ([]map[string]any, error)
	// Snapshot captures current state so a failed cascade can roll back.
	Snapshot(ctx context.Context, subjectID string) (RestoreFunc, error)
	Delete(ctx context.Context, subjectID string) error
	// Anonymize scrubs identifiers in place but keeps the rows, for
	// categories under a retention override.
	Anonymize(ctx context.Context, subjectID string) error
}
