package handler

import (
	"strings"

	"consentry/internal/consent/models"
	"consentry/internal/consent/verify"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
	pstrings "consentry/pkg/platform/strings"
)

// CreateRequest asks for a new consent record.
type CreateRequest struct {
	SubjectID string   `json:"subject_id"`
	Type      string   `json:"type"`
	Purposes  []string `json:"purposes"`
}

// Normalize applies business defaults and sanitizes inputs.
func (r *CreateRequest) Normalize() {
	if r == nil {
		return
	}
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.Purposes = pstrings.DedupeAndTrimLower(r.Purposes)
}

// Validate checks that the request is well-formed.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subject_id is required")
	}
	if r.Type == "" {
		return dErrors.New(dErrors.CodeBadRequest, "type is required")
	}
	if len(r.Purposes) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one purpose is required")
	}
	return nil
}

// ToPurposes converts request purposes into domain purposes.
func (r *CreateRequest) ToPurposes() []models.Purpose {
	out := make([]models.Purpose, 0, len(r.Purposes))
	for _, p := range r.Purposes {
		out = append(out, models.Purpose(p))
	}
	return out
}

// VerifyRequest carries one verification attempt.
type VerifyRequest struct {
	Method   string            `json:"method"`
	Evidence map[string]string `json:"evidence"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if strings.TrimSpace(r.Method) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "method is required")
	}
	return nil
}

// ToEvidence strips the engine-reserved keys from caller input.
func (r *VerifyRequest) ToEvidence() verify.Evidence {
	ev := make(verify.Evidence, len(r.Evidence))
	for k, v := range r.Evidence {
		if k == verify.EvidenceKeyConsentID {
			continue
		}
		ev[k] = v
	}
	return ev
}

// ReasonRequest carries the free-text reason for a revocation or denial.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func parseSubjectID(raw string) (id.SubjectID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "subject_id is required")
	}
	return id.SubjectID(raw), nil
}
