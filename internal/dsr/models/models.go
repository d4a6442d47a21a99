// Package models defines the data subject request entity and its state
// machine: pending -> processing -> completed | rejected. No transition
// skips processing, and a terminal request is never mutated again.
package models

import (
	"time"

	"consentry/internal/datacat"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// RequestType enumerates the data protection rights a subject can exercise.
type RequestType string

const (
	TypeAccess        RequestType = "access"
	TypeRectification RequestType = "rectification"
	TypeErasure       RequestType = "erasure"
	TypePortability   RequestType = "portability"
	TypeRestriction   RequestType = "restriction"
	TypeObjection     RequestType = "objection"
)

var ValidTypes = map[RequestType]bool{
	TypeAccess:        true,
	TypeRectification: true,
	TypeErasure:       true,
	TypePortability:   true,
	TypeRestriction:   true,
	TypeObjection:     true,
}

func (t RequestType) IsValid() bool {
	return ValidTypes[t]
}

// Mutating reports whether processing this type changes subject data, which
// means it must serialize against other in-flight work for the subject.
func (t RequestType) Mutating() bool {
	return t == TypeErasure || t == TypeRectification
}

// Status is the request lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// RetainedCategory is one category an erasure request could not delete,
// with the legal ground for keeping it.
type RetainedCategory struct {
	Category        datacat.Category `json:"category"`
	LegalBasis      string           `json:"legal_basis"`
	MinDurationDays int              `json:"min_duration_days"`
}

// Result is the type-specific outcome payload of a completed request.
type Result struct {
	// Access: everything held about the subject, organized by category.
	Access map[datacat.Category][]map[string]any `json:"access,omitempty"`
	// Erasure: what was removed and what had to stay.
	Deleted  []datacat.Category `json:"deleted,omitempty"`
	Retained []RetainedCategory `json:"retained,omitempty"`
	// Rectification: fields actually updated.
	UpdatedFields []string `json:"updated_fields,omitempty"`
	// Portability: the signed, time-limited download token for the
	// encrypted export artifact.
	ExportRef string `json:"export_ref,omitempty"`
	// Restriction/objection: the processing flag that was recorded.
	RestrictionKind string `json:"restriction_kind,omitempty"`
}

// Request is one data subject request.
type Request struct {
	ID          id.RequestID
	Type        RequestType
	SubjectID   id.SubjectID
	RequesterID id.ActorID
	Status      Status
	Notes       string

	// Corrections is set at submission for rectification requests only.
	Corrections map[string]string

	SubmittedAt time.Time
	// DueDate is fixed at submission as SubmittedAt plus the SLA window and
	// never moves afterwards.
	DueDate     time.Time
	CompletedAt *time.Time

	// LastWarnedAt tracks the once-per-day SLA warning cadence.
	LastWarnedAt *time.Time
	// Attempts counts processing runs, including failed ones.
	Attempts int

	Result          *Result
	RejectionReason string
}

// Validate enforces the structural invariants common to every state.
func (r Request) Validate() error {
	if r.ID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "request ID required")
	}
	if r.SubjectID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	if !r.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid request type")
	}
	if r.DueDate.IsZero() || r.SubmittedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "submission and due timestamps required")
	}
	if r.Status == StatusCompleted && r.CompletedAt == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "completed request requires completion time")
	}
	if r.Status != StatusCompleted && r.CompletedAt != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "completion time set on non-completed request")
	}
	return nil
}

// Overdue reports whether the SLA deadline has passed for an open request.
func (r Request) Overdue(now time.Time) bool {
	return !r.Status.Terminal() && now.After(r.DueDate)
}

// InWarningWindow reports whether the request is close enough to its
// deadline that the privacy team should hear about it.
func (r Request) InWarningWindow(now time.Time, window time.Duration) bool {
	return !r.Status.Terminal() && now.After(r.DueDate.Add(-window))
}

// WarnedToday reports whether a warning already went out on this calendar day.
func (r Request) WarnedToday(now time.Time) bool {
	if r.LastWarnedAt == nil {
		return false
	}
	wy, wm, wd := r.LastWarnedAt.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return wy == ny && wm == nm && wd == nd
}
