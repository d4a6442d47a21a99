package handler

import (
	"time"

	"consentry/internal/consent/models"
)

// RecordResponse is the wire shape of a consent record version.
type RecordResponse struct {
	ID                 string     `json:"id"`
	SubjectID          string     `json:"subject_id"`
	Type               string     `json:"type"`
	Purposes           []string   `json:"purposes"`
	Status             string     `json:"status"`
	GuardianRequired   bool       `json:"guardian_required"`
	ParentGuardianID   string     `json:"parent_guardian_id,omitempty"`
	GrantedBy          string     `json:"granted_by,omitempty"`
	GrantedAt          *time.Time `json:"granted_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	VerificationMethod string     `json:"verification_method,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
	RevokedBy          string     `json:"revoked_by,omitempty"`
	RevocationReason   string     `json:"revocation_reason,omitempty"`
	DenialReason       string     `json:"denial_reason,omitempty"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toRecordResponse(rec *models.Record) RecordResponse {
	purposes := make([]string, 0, len(rec.Purposes))
	for _, p := range rec.Purposes {
		purposes = append(purposes, string(p))
	}
	return RecordResponse{
		ID:                 string(rec.ID),
		SubjectID:          string(rec.SubjectID),
		Type:               string(rec.Type),
		Purposes:           purposes,
		Status:             string(rec.Status),
		GuardianRequired:   rec.GuardianRequired,
		ParentGuardianID:   string(rec.ParentGuardianID),
		GrantedBy:          string(rec.GrantedBy),
		GrantedAt:          rec.GrantedAt,
		ExpiresAt:          rec.ExpiresAt,
		VerificationMethod: string(rec.VerificationMethod),
		VerifiedAt:         rec.VerifiedAt,
		RevokedAt:          rec.RevokedAt,
		RevokedBy:          string(rec.RevokedBy),
		RevocationReason:   rec.RevocationReason,
		DenialReason:       rec.DenialReason,
		Version:            rec.Version,
		CreatedAt:          rec.CreatedAt,
	}
}

func toRecordResponses(recs []*models.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

// ChallengeResponse tells the caller how to complete guardian verification.
// The one-time code itself is delivered to the guardian out of band and is
// never echoed over this API.
type ChallengeResponse struct {
	Reference string    `json:"reference"`
	Methods   []string  `json:"methods"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toChallengeResponse(ch *models.Challenge) *ChallengeResponse {
	if ch == nil {
		return nil
	}
	methods := make([]string, 0, len(ch.Methods))
	for _, m := range ch.Methods {
		methods = append(methods, string(m))
	}
	return &ChallengeResponse{
		Reference: ch.Reference,
		Methods:   methods,
		ExpiresAt: ch.ExpiresAt,
	}
}

// CreateResponse is returned from consent creation.
type CreateResponse struct {
	Record    RecordResponse     `json:"record"`
	Challenge *ChallengeResponse `json:"challenge,omitempty"`
}

// VerifyResponse reports the outcome of a verification attempt.
type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RevokeResponse is returned from revocation.
type RevokeResponse struct {
	Record      RecordResponse `json:"record"`
	DataDeleted bool           `json:"data_deleted"`
}

// ListResponse wraps a set of consent records.
type ListResponse struct {
	Records []RecordResponse `json:"records"`
}
