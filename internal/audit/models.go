package audit

import (
	"time"

	id "consentry/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Every consent state
// transition and every DSR state transition produces exactly one Event.
type Event struct {
	Timestamp  time.Time
	ActorID    id.ActorID
	SubjectID  id.SubjectID
	Action     string
	Resource   string
	ResourceID string
	Outcome    string
	Reason     string
	// Detail carries diagnostic context (anonymized IP, device fingerprint,
	// failed method). Full detail stays here; user-facing errors are generic.
	Detail map[string]string
}

// Actions
const (
	ActionConsentRequested  = "consent_requested"
	ActionConsentGranted    = "consent_granted"
	ActionConsentDenied     = "consent_denied"
	ActionConsentRevoked    = "consent_revoked"
	ActionConsentVerified   = "consent_verified"
	ActionVerifyFailed      = "consent_verify_failed"
	ActionCascadeDeleted    = "cascade_deleted"
	ActionCascadeRolledBack = "cascade_rolled_back"
	ActionDSRSubmitted      = "dsr_submitted"
	ActionDSRProcessing     = "dsr_processing"
	ActionDSRCompleted      = "dsr_completed"
	ActionDSRRejected       = "dsr_rejected"
	ActionDSRRetryScheduled = "dsr_retry_scheduled"
	ActionDataDisclosed     = "data_disclosed"
)

// Resources
const (
	ResourceConsent = "consent"
	ResourceDSR     = "dsr"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)
