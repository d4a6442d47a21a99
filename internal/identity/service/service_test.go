package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consentry/internal/identity/models"
	"consentry/internal/identity/store"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *Service
	now     time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.New()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.service = NewService(
		s.store,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return s.now }),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) seed(subjectID id.SubjectID, birth time.Time, guardians ...id.ActorID) {
	s.Require().NoError(s.store.Save(context.Background(), &models.Subject{
		ID:          subjectID,
		Name:        "Test Subject",
		Email:       "subject@example.org",
		DateOfBirth: birth,
		Guardians:   guardians,
	}))
}

func (s *ServiceSuite) TestResolveAge() {
	s.Run("minor under threshold", func() {
		s.seed("minor-1", time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC))
		profile, err := s.service.ResolveAge(context.Background(), "minor-1")
		s.Require().NoError(err)
		s.Equal(9, profile.Age)
		s.True(profile.IsMinor)
	})

	s.Run("teen above threshold is not a minor", func() {
		s.seed("teen-1", time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC))
		profile, err := s.service.ResolveAge(context.Background(), "teen-1")
		s.Require().NoError(err)
		s.Equal(17, profile.Age)
		s.False(profile.IsMinor)
	})

	s.Run("unknown subject returns CodeNotFound", func() {
		_, err := s.service.ResolveAge(context.Background(), "missing")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing date of birth returns CodeNotFound", func() {
		s.seed("no-dob", time.Time{})
		_, err := s.service.ResolveAge(context.Background(), "no-dob")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestIsGuardian() {
	s.seed("minor-2", time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), "guardian-1")

	ok, err := s.service.IsGuardian(context.Background(), "minor-2", "guardian-1")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.IsGuardian(context.Background(), "minor-2", "stranger")
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.service.IsGuardian(context.Background(), "minor-2", "")
	s.Require().NoError(err)
	s.False(ok, "empty actor never has standing")
}
