package models

import (
	"time"

	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// Record captures one version of a subject's consent decision for a consent
// type and purpose set.
//
// # Versioning Invariant
//
// Records are append-only once they leave pending: every state transition
// writes a new version row with the same ConsentID and Version+1, so the
// full history is reconstructible. Transitions carry the expected version;
// a mismatch means a concurrent writer won and the caller gets a conflict.
type Record struct {
	ID        id.ConsentID
	SubjectID id.SubjectID
	Type      Type
	Purposes  []Purpose
	Status    Status

	// GuardianRequired is set at creation when the subject is a minor; the
	// record can never reach granted without a guardian-passed verification.
	GuardianRequired bool
	// ParentGuardianID is recorded when a guardian's verification passes.
	ParentGuardianID id.ActorID

	GrantedBy          id.ActorID
	GrantedAt          *time.Time
	ExpiresAt          *time.Time
	VerificationMethod VerificationMethod
	VerifiedAt         *time.Time

	RevokedAt        *time.Time
	RevokedBy        id.ActorID
	RevocationReason string
	DenialReason     string

	Version   int
	CreatedAt time.Time
}

// Validate enforces the structural invariants a record must satisfy in any
// state. Stores call this before persisting.
func (c Record) Validate() error {
	if c.ID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "consent ID required")
	}
	if c.SubjectID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "subject ID required")
	}
	if !c.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid consent type")
	}
	if len(c.Purposes) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "at least one purpose required")
	}
	for _, p := range c.Purposes {
		if !p.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "invalid consent purpose")
		}
	}
	if c.Status == StatusGranted {
		if c.GrantedAt == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "granted consent requires grant time")
		}
		if c.GuardianRequired {
			if c.ParentGuardianID.IsEmpty() {
				return dErrors.New(dErrors.CodeInvariantViolation, "guardian-required consent granted without guardian")
			}
			if c.VerifiedAt == nil {
				return dErrors.New(dErrors.CodeInvariantViolation, "guardian-required consent granted without verification")
			}
		}
	}
	if c.ExpiresAt != nil && c.GrantedAt != nil && !c.ExpiresAt.After(*c.GrantedAt) {
		return dErrors.New(dErrors.CodeInvariantViolation, "expiry must be strictly after grant time")
	}
	return nil
}

// ComputeStatus reports the consent lifecycle state at the provided time.
// Expiry is evaluated lazily here rather than by a background sweep.
func (c Record) ComputeStatus(now time.Time) Status {
	if c.Status == StatusGranted && c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return StatusExpired
	}
	return c.Status
}

// IsActive returns true when consent is currently granted and unexpired.
func (c Record) IsActive(now time.Time) bool {
	return c.ComputeStatus(now) == StatusGranted
}

// Covers reports whether the granted purpose set includes every required purpose.
func (c Record) Covers(required []Purpose) bool {
	granted := make(map[Purpose]bool, len(c.Purposes))
	for _, p := range c.Purposes {
		granted[p] = true
	}
	for _, p := range required {
		if !granted[p] {
			return false
		}
	}
	return true
}

// NextVersion returns a copy of the record ready to be appended as the next
// version row. Timestamps of the prior version are preserved; the caller
// mutates only the fields the transition changes.
func (c Record) NextVersion() Record {
	next := c
	next.Purposes = append([]Purpose{}, c.Purposes...)
	next.Version = c.Version + 1
	return next
}

// RecordFilter narrows listings by type and derived status.
type RecordFilter struct {
	Type   *Type
	Status *Status
}

// Challenge references the verification step a pending consent is waiting on.
// The workflow returns it alongside the pending record; the email_plus
// strategy checks the submitted code against it.
type Challenge struct {
	ConsentID id.ConsentID
	Reference string
	Code      string
	Methods   []VerificationMethod
	ExpiresAt time.Time
}
