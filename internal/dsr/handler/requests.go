package handler

import (
	"strings"

	"consentry/internal/dsr/models"
	dErrors "consentry/pkg/domain-errors"
)

// SubmitRequest opens a new data subject request.
type SubmitRequest struct {
	Type      string `json:"type"`
	SubjectID string `json:"subject_id"`
	Notes     string `json:"notes"`
	// Corrections is required for rectification requests.
	Corrections map[string]string `json:"corrections"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *SubmitRequest) Normalize() {
	if r == nil {
		return
	}
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Notes = strings.TrimSpace(r.Notes)
}

// Validate checks that the request is well-formed.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subject_id is required")
	}
	if !models.RequestType(r.Type).IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown request type")
	}
	return nil
}
