package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"consentry/internal/identity/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
	pkgerrors "consentry/pkg/domain-errors"
)

// Store defines the persistence interface for subjects.
type Store interface {
	Save(ctx context.Context, subject *models.Subject) error
	Find(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, subjectID id.SubjectID) error
}

// Service is the single place age and guardianship are resolved. Every other
// component branches on its output rather than recomputing age.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source; tests pin it to fixed instants.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ResolveAge resolves a subject's age and minor status at the current time.
func (s *Service) ResolveAge(ctx context.Context, subjectID id.SubjectID) (models.AgeProfile, error) {
	subject, err := s.find(ctx, subjectID)
	if err != nil {
		return models.AgeProfile{}, err
	}
	if subject.DateOfBirth.IsZero() {
		return models.AgeProfile{}, pkgerrors.New(pkgerrors.CodeNotFound, "date of birth unknown for subject")
	}
	now := s.now()
	return models.AgeProfile{
		Age:     id.Age(subject.DateOfBirth, now),
		IsMinor: id.IsMinor(subject.DateOfBirth, now),
	}, nil
}

// IsGuardian reports whether actor has recorded guardian authority over the subject.
func (s *Service) IsGuardian(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) (bool, error) {
	if actor.IsEmpty() {
		return false, nil
	}
	subject, err := s.find(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return subject.HasGuardian(actor), nil
}

// Guardians lists the recorded guardians for a subject.
func (s *Service) Guardians(ctx context.Context, subjectID id.SubjectID) ([]id.ActorID, error) {
	subject, err := s.find(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return append([]id.ActorID{}, subject.Guardians...), nil
}

// Get returns the full subject record.
func (s *Service) Get(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	return s.find(ctx, subjectID)
}

// CorrectableFields is the fixed allow-list of fields a rectification
// request may touch. Identity-defining columns (date of birth, guardians)
// are deliberately absent; changing those is an administrative action, not
// a self-service correction.
var CorrectableFields = map[string]bool{
	"name":               true,
	"email":              true,
	"preferred_language": true,
}

// ApplyCorrections updates the allow-listed profile fields and reports which
// fields actually changed. Any field outside the allow-list rejects the
// whole correction set; partial application would make the rectification
// result unreliable.
func (s *Service) ApplyCorrections(ctx context.Context, subjectID id.SubjectID, corrections map[string]string) ([]string, error) {
	if len(corrections) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "no corrections supplied")
	}
	for field := range corrections {
		if !CorrectableFields[field] {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidField, "field cannot be corrected: "+field)
		}
	}
	subject, err := s.find(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var updated []string
	for field, value := range corrections {
		switch field {
		case "name":
			if subject.Name != value {
				subject.Name = value
				updated = append(updated, field)
			}
		case "email":
			if subject.Email != value {
				subject.Email = value
				updated = append(updated, field)
			}
		case "preferred_language":
			if subject.PreferredLanguage != value {
				subject.PreferredLanguage = value
				updated = append(updated, field)
			}
		}
	}
	if len(updated) == 0 {
		return nil, nil
	}
	if err := s.store.Update(ctx, subject); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to apply corrections")
	}
	sort.Strings(updated)
	return updated, nil
}

func (s *Service) find(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	if subjectID.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "subject ID required")
	}
	subject, err := s.store.Find(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subject not found")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read subject")
	}
	return subject, nil
}
