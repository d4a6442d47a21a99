package verify

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"

	"consentry/internal/consent/models"
	"consentry/internal/consent/store"
	id "consentry/pkg/domain"
)

// Evidence is the caller-supplied proof blob. Keys are strategy-specific;
// the engine injects the reserved key "consent_id" before dispatch so
// strategies can look up server-side state without widening the interface.
type Evidence map[string]string

// EvidenceKeyConsentID is reserved by the engine; callers cannot set it.
const EvidenceKeyConsentID = "consent_id"

// Strategy decides whether a piece of evidence proves the verifying party's
// identity. Strategies are individually swappable; adding a method means
// adding an implementation, not touching the engine.
type Strategy interface {
	Method() models.VerificationMethod
	// Verify returns whether the evidence passes and a short internal
	// reason. The reason goes to the audit trail, never to the caller.
	Verify(ctx context.Context, evidence Evidence) (bool, string)
}

// EmailPlusStrategy checks the one-time code that was dispatched to the
// guardian out of band against the stored challenge.
type EmailPlusStrategy struct {
	challenges store.ChallengeStore
}

func NewEmailPlusStrategy(challenges store.ChallengeStore) *EmailPlusStrategy {
	return &EmailPlusStrategy{challenges: challenges}
}

func (s *EmailPlusStrategy) Method() models.VerificationMethod { return models.MethodEmailPlus }

func (s *EmailPlusStrategy) Verify(ctx context.Context, evidence Evidence) (bool, string) {
	code := evidence["code"]
	if code == "" {
		return false, "no code supplied"
	}
	ch, err := s.challenges.Find(ctx, id.ConsentID(evidence[EvidenceKeyConsentID]))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, "challenge lookup timed out"
		}
		return false, "no live challenge for consent"
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(ch.Code)) != 1 {
		return false, "code mismatch"
	}
	return true, "code matched"
}

// KnowledgeBasedStrategy relays the outcome of an external KBA provider
// session. The provider asks the identity questions; this strategy only
// validates the returned session score against the acceptance threshold.
type KnowledgeBasedStrategy struct {
	// MinScore is the lowest provider confidence accepted. Defaults to 0.8.
	MinScore float64
}

func (s *KnowledgeBasedStrategy) Method() models.VerificationMethod {
	return models.MethodKnowledgeBased
}

func (s *KnowledgeBasedStrategy) Verify(_ context.Context, evidence Evidence) (bool, string) {
	if evidence["session_id"] == "" {
		return false, "no provider session"
	}
	score, err := strconv.ParseFloat(evidence["score"], 64)
	if err != nil {
		return false, "unreadable provider score"
	}
	min := s.MinScore
	if min == 0 {
		min = 0.8
	}
	if score < min {
		return false, "provider score below threshold"
	}
	return true, "provider score accepted"
}

// DocumentUploadStrategy accepts a government-ID upload that a reviewer (or
// the document-verification vendor) has already approved.
type DocumentUploadStrategy struct{}

func (DocumentUploadStrategy) Method() models.VerificationMethod {
	return models.MethodDocumentUpload
}

func (DocumentUploadStrategy) Verify(_ context.Context, evidence Evidence) (bool, string) {
	if evidence["document_ref"] == "" {
		return false, "no document reference"
	}
	if evidence["review_status"] != "approved" {
		return false, "document not approved"
	}
	return true, "document approved"
}

// PaymentCardStrategy accepts the outcome of the COPPA small-charge card
// check: a successful nominal charge against a card in the guardian's name.
type PaymentCardStrategy struct{}

func (PaymentCardStrategy) Method() models.VerificationMethod { return models.MethodPaymentCard }

func (PaymentCardStrategy) Verify(_ context.Context, evidence Evidence) (bool, string) {
	if evidence["transaction_id"] == "" {
		return false, "no card transaction"
	}
	if evidence["charge_status"] != "succeeded" {
		return false, "card charge did not succeed"
	}
	return true, "card charge succeeded"
}

// DefaultStrategies wires the full built-in strategy set.
func DefaultStrategies(challenges store.ChallengeStore) []Strategy {
	return []Strategy{
		NewEmailPlusStrategy(challenges),
		&KnowledgeBasedStrategy{},
		DocumentUploadStrategy{},
		PaymentCardStrategy{},
	}
}
