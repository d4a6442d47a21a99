package models

import (
	"time"

	id "consentry/pkg/domain"
)

// Subject is a data subject known to the platform. DateOfBirth drives the
// guardian-consent branching; Guardians lists actors with recorded authority
// to consent and act on the subject's behalf.
type Subject struct {
	ID          id.SubjectID
	Name        string
	Email       string
	DateOfBirth time.Time
	Guardians   []id.ActorID
	// Rectifiable profile fields outside the core identity columns.
	PreferredLanguage string
	CreatedAt         time.Time
}

// HasGuardian reports whether the actor is a recorded guardian of the subject.
func (s Subject) HasGuardian(actor id.ActorID) bool {
	for _, g := range s.Guardians {
		if g == actor {
			return true
		}
	}
	return false
}

// AgeProfile is the resolver output every age-branching component consumes.
// No other component recomputes age.
type AgeProfile struct {
	Age     int
	IsMinor bool
}
