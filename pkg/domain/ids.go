package domain

import "github.com/google/uuid"

// Typed identifiers keep subject, actor, and record references from being
// mixed up at call sites. They are plain strings underneath so stores can
// persist them without conversion ceremony.

// SubjectID identifies a data subject (a student or other end user).
type SubjectID string

// ActorID identifies any party performing an action: the subject themselves,
// a guardian, or an operator. A subject acting on their own behalf uses their
// SubjectID as ActorID.
type ActorID string

// ConsentID identifies a consent record across all of its versions.
type ConsentID string

// RequestID identifies a data subject request.
type RequestID string

// DisclosureID identifies an entry in the disclosure log.
type DisclosureID string

func NewConsentID() ConsentID {
	return ConsentID("consent_" + uuid.NewString())
}

func NewRequestID() RequestID {
	return RequestID("dsr_" + uuid.NewString())
}

func NewDisclosureID() DisclosureID {
	return DisclosureID("disc_" + uuid.NewString())
}

func (s SubjectID) IsEmpty() bool  { return s == "" }
func (a ActorID) IsEmpty() bool    { return a == "" }
func (c ConsentID) IsEmpty() bool  { return c == "" }
func (r RequestID) IsEmpty() bool  { return r == "" }
func (s SubjectID) Actor() ActorID { return ActorID(s) }
