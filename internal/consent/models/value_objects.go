package models

import "time"

// Type is the kind of processing a consent record covers.
type Type string

const (
	TypeAccountCreation     Type = "account_creation"
	TypeEducationalServices Type = "educational_services"
	TypePersonalization     Type = "personalization"
	TypeAnalytics           Type = "analytics"
	TypeMarketing           Type = "marketing"
	TypeThirdPartySharing   Type = "third_party_sharing"
	TypeResearch            Type = "research"
	TypeAIProcessing        Type = "ai_processing"
	TypeParental            Type = "parental"
)

// ValidTypes is the single source of truth for all valid consent types.
var ValidTypes = map[Type]bool{
	TypeAccountCreation:     true,
	TypeEducationalServices: true,
	TypePersonalization:     true,
	TypeAnalytics:           true,
	TypeMarketing:           true,
	TypeThirdPartySharing:   true,
	TypeResearch:            true,
	TypeAIProcessing:        true,
	TypeParental:            true,
}

// IsValid checks if the consent type is one of the supported enum values.
func (t Type) IsValid() bool {
	return ValidTypes[t]
}

// CoversCoreProcessing reports whether revoking this consent for a minor
// pulls the legal basis out from under the subject's dependent data,
// requiring cascading deletion.
func (t Type) CoversCoreProcessing() bool {
	return t == TypeAccountCreation || t == TypeEducationalServices
}

// SelfGrantable reports whether an adult subject can grant this type on
// their own authenticated say-so, without a separate verification step.
// Parental consent is never self-granted.
func (t Type) SelfGrantable() bool {
	return t != TypeParental
}

// Purpose labels why data is processed. A consent is valid for a request
// only if the request's required purposes are a subset of the granted set.
type Purpose string

const (
	PurposeServiceDelivery  Purpose = "service_delivery"
	PurposeProgressTracking Purpose = "progress_tracking"
	PurposePersonalization  Purpose = "personalization"
	PurposeAnalytics        Purpose = "analytics"
	PurposeMarketing        Purpose = "marketing"
	PurposeThirdParty       Purpose = "third_party_sharing"
	PurposeResearch         Purpose = "research"
	PurposeAITraining       Purpose = "ai_training"
)

// ValidPurposes is the single source of truth for the purpose vocabulary.
var ValidPurposes = map[Purpose]bool{
	PurposeServiceDelivery:  true,
	PurposeProgressTracking: true,
	PurposePersonalization:  true,
	PurposeAnalytics:        true,
	PurposeMarketing:        true,
	PurposeThirdParty:       true,
	PurposeResearch:         true,
	PurposeAITraining:       true,
}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	return ValidPurposes[p]
}

// Status represents the lifecycle state of a consent record. Expired is
// never stored; it is derived at read time from ExpiresAt.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusGranted, StatusDenied, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// VerificationMethod names a pluggable verification strategy.
type VerificationMethod string

const (
	MethodEmailPlus      VerificationMethod = "email_plus"
	MethodKnowledgeBased VerificationMethod = "knowledge_based"
	MethodDocumentUpload VerificationMethod = "document_upload"
	MethodPaymentCard    VerificationMethod = "payment_card"
)

// DefaultTTLByType maps each consent type to its default validity window.
// Zero means the consent does not expire while the account is active.
// The workflow derives ExpiresAt from this table; nothing infers expiry.
var DefaultTTLByType = map[Type]time.Duration{
	TypeAccountCreation:     0,
	TypeEducationalServices: 0,
	TypeParental:            0,
	TypePersonalization:     730 * 24 * time.Hour,
	TypeAnalytics:           365 * 24 * time.Hour,
	TypeMarketing:           365 * 24 * time.Hour,
	TypeResearch:            365 * 24 * time.Hour,
	TypeAIProcessing:        365 * 24 * time.Hour,
	TypeThirdPartySharing:   180 * 24 * time.Hour,
}

// TTLFor returns the default validity window for a consent type.
func TTLFor(t Type) time.Duration {
	return DefaultTTLByType[t]
}
