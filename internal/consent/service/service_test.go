package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consentry/internal/audit"
	"consentry/internal/consent/models"
	"consentry/internal/consent/service"
	cstore "consentry/internal/consent/store"
	"consentry/internal/datacat"
	identitymodels "consentry/internal/identity/models"
	identityservice "consentry/internal/identity/service"
	identitystore "consentry/internal/identity/store"
	"consentry/internal/notify"
	"consentry/internal/platform/crypto"
	"consentry/internal/retention"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

const (
	minorID    = id.SubjectID("student-minor")
	teenID     = id.SubjectID("student-teen")
	guardianID = id.ActorID("guardian-1")
	strangerID = id.ActorID("actor-stranger")
)

type ServiceSuite struct {
	suite.Suite

	now        time.Time
	consents   *cstore.InMemoryStore
	challenges *cstore.InMemoryChallengeStore
	notifier   *notify.Recorder
	auditStore *audit.InMemoryStore
	sessions   *datacat.MemoryHandler
	finance    *datacat.MemoryHandler
	registry   *datacat.Registry
	svc        *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	idStore := identitystore.New()
	s.Require().NoError(idStore.Save(context.Background(), &identitymodels.Subject{
		ID:          minorID,
		Name:        "Milo Park",
		Email:       "milo@example.org",
		DateOfBirth: time.Date(2016, time.May, 20, 0, 0, 0, 0, time.UTC), // age 9
		Guardians:   []id.ActorID{guardianID},
	}))
	s.Require().NoError(idStore.Save(context.Background(), &identitymodels.Subject{
		ID:          teenID,
		Name:        "Tess Park",
		Email:       "tess@example.org",
		DateOfBirth: time.Date(2008, time.June, 15, 0, 0, 0, 0, time.UTC), // age 17
	}))
	identity := identityservice.NewService(idStore, logger, identityservice.WithClock(clock))

	s.consents = cstore.New()
	s.challenges = cstore.NewInMemoryChallengeStore().WithChallengeClock(clock)
	s.notifier = notify.NewRecorder()
	s.auditStore = audit.NewInMemoryStore()

	s.sessions = datacat.NewMemoryHandler(datacat.CategoryLearningSessions, false)
	s.finance = datacat.NewMemoryHandler(datacat.CategoryFinancialRecords, false)
	s.registry = datacat.NewRegistry(logger, s.sessions, s.finance)

	cryptoSvc, err := crypto.NewAEAD(nil)
	s.Require().NoError(err)

	s.svc = service.NewService(
		s.consents,
		s.challenges,
		identity,
		retention.NewResolver(),
		s.registry,
		cryptoSvc,
		audit.NewPublisher(s.auditStore),
		logger,
		service.WithClock(clock),
		service.WithNotifier(s.notifier),
	)
}

func (s *ServiceSuite) requestMinorConsent() service.RequestOutcome {
	out, err := s.svc.RequestConsent(context.Background(), service.ConsentRequest{
		SubjectID: minorID,
		Type:      models.TypeEducationalServices,
		Purposes:  []models.Purpose{models.PurposeServiceDelivery, models.PurposeProgressTracking},
	})
	s.Require().NoError(err)
	return out
}

// grantMinorConsent seeds a guardian-verified educational consent directly
// in the ledger, as the verification engine would have written it.
func (s *ServiceSuite) grantMinorConsent() *models.Record {
	granted := s.now.Add(-30 * 24 * time.Hour)
	rec := &models.Record{
		ID:                 id.NewConsentID(),
		SubjectID:          minorID,
		Type:               models.TypeEducationalServices,
		Purposes:           []models.Purpose{models.PurposeServiceDelivery},
		Status:             models.StatusGranted,
		GuardianRequired:   true,
		ParentGuardianID:   guardianID,
		GrantedBy:          guardianID,
		GrantedAt:          &granted,
		VerifiedAt:         &granted,
		VerificationMethod: models.MethodEmailPlus,
		CreatedAt:          granted,
	}
	s.Require().NoError(s.consents.Append(context.Background(), rec))
	return rec
}

func (s *ServiceSuite) TestMinorRequestCreatesPendingWithGuardianEscalation() {
	out := s.requestMinorConsent()

	s.Equal(models.StatusPending, out.Record.Status)
	s.True(out.Record.GuardianRequired)
	s.True(out.Record.ParentGuardianID.IsEmpty(), "guardian is recorded at verification, not at request")
	s.Equal(1, out.Record.Version)

	s.Require().NotNil(out.Challenge)
	s.NotEmpty(out.Challenge.Code)
	s.Equal(s.now.Add(48*time.Hour), out.Challenge.ExpiresAt)

	sent := s.notifier.SentTo(notify.ChannelGuardian)
	s.Require().Len(sent, 1)
	s.Equal(string(guardianID), sent[0].Recipient)
	s.Contains(sent[0].Body, out.Challenge.Code)
}

func (s *ServiceSuite) TestAdultSelfGrantSetsExpiryFromTypeTable() {
	out, err := s.svc.RequestConsent(context.Background(), service.ConsentRequest{
		SubjectID: teenID,
		Type:      models.TypeMarketing,
		Purposes:  []models.Purpose{models.PurposeMarketing},
	})
	s.Require().NoError(err)

	s.Equal(models.StatusGranted, out.Record.Status)
	s.False(out.Record.GuardianRequired)
	s.Nil(out.Challenge)
	s.Require().NotNil(out.Record.ExpiresAt)
	s.Equal(s.now.AddDate(0, 0, 365), *out.Record.ExpiresAt)
	s.Empty(s.notifier.Sent())
}

func (s *ServiceSuite) TestParentalTypeIsNeverSelfGranted() {
	out, err := s.svc.RequestConsent(context.Background(), service.ConsentRequest{
		SubjectID: teenID,
		Type:      models.TypeParental,
		Purposes:  []models.Purpose{models.PurposeServiceDelivery},
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, out.Record.Status)
	s.False(out.Record.GuardianRequired)
	s.NotNil(out.Challenge)
}

func (s *ServiceSuite) TestRequestValidation() {
	cases := []struct {
		name string
		req  service.ConsentRequest
		code dErrors.Code
	}{
		{"unknown type", service.ConsentRequest{SubjectID: teenID, Type: "telepathy", Purposes: []models.Purpose{models.PurposeMarketing}}, dErrors.CodeInvalidInput},
		{"no purposes", service.ConsentRequest{SubjectID: teenID, Type: models.TypeMarketing}, dErrors.CodeInvalidPurpose},
		{"unknown purpose", service.ConsentRequest{SubjectID: teenID, Type: models.TypeMarketing, Purposes: []models.Purpose{"world_domination"}}, dErrors.CodeInvalidPurpose},
		{"unknown subject", service.ConsentRequest{SubjectID: "student-ghost", Type: models.TypeMarketing, Purposes: []models.Purpose{models.PurposeMarketing}}, dErrors.CodeNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.RequestConsent(context.Background(), tc.req)
			s.True(dErrors.HasCode(err, tc.code), "want %s, got %v", tc.code, err)
		})
	}
}

func (s *ServiceSuite) TestDuplicatePendingRequestConflicts() {
	s.requestMinorConsent()
	_, err := s.svc.RequestConsent(context.Background(), service.ConsentRequest{
		SubjectID: minorID,
		Type:      models.TypeEducationalServices,
		Purposes:  []models.Purpose{models.PurposeServiceDelivery},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRequestRequiresStanding() {
	_, err := s.svc.RequestConsent(context.Background(), service.ConsentRequest{
		SubjectID:   teenID,
		Type:        models.TypeMarketing,
		Purposes:    []models.Purpose{models.PurposeMarketing},
		RequestedBy: strangerID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "got %v", err)

	_, findErr := s.consents.FindLatest(context.Background(), teenID, models.TypeMarketing)
	s.True(errors.Is(findErr, sentinel.ErrNotFound), "nothing may reach the ledger")

	// A recorded guardian has standing to request on the minor's behalf.
	out, err := s.svc.RequestConsent(context.Background(), service.ConsentRequest{
		SubjectID:   minorID,
		Type:        models.TypeEducationalServices,
		Purposes:    []models.Purpose{models.PurposeServiceDelivery},
		RequestedBy: guardianID,
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, out.Record.Status)
}

func (s *ServiceSuite) TestRevokeRequiresStanding() {
	rec := s.grantMinorConsent()
	_, err := s.svc.Revoke(context.Background(), rec.ID, strangerID, "because")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.svc.Revoke(context.Background(), "consent-missing", guardianID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGuardianRevocationCascades() {
	rec := s.grantMinorConsent()
	s.sessions.Put(string(minorID), map[string]any{"subject_id": string(minorID), "lesson": "fractions"})
	s.finance.Put(string(minorID), map[string]any{"subject_id": string(minorID), "name": "Milo Park", "invoice": 42})

	res, err := s.svc.Revoke(context.Background(), rec.ID, guardianID, "withdrawing the account")
	s.Require().NoError(err)

	s.True(res.DataDeleted)
	s.Equal(models.StatusRevoked, res.Record.Status)
	s.Equal(guardianID, res.Record.RevokedBy)
	s.Equal(2, res.Record.Version)

	s.Empty(s.sessions.Rows(string(minorID)), "learning sessions deleted outright")
	s.Empty(s.finance.Rows(string(minorID)), "financial rows no longer keyed by the subject")

	events, err := s.auditStore.ListBySubject(context.Background(), minorID)
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, audit.ActionCascadeDeleted)
	s.Contains(actions, audit.ActionConsentRevoked)
}

func (s *ServiceSuite) TestRevocationFailsWhollyWhenCascadeFails() {
	rec := s.grantMinorConsent()
	s.sessions.Put(string(minorID), map[string]any{"subject_id": string(minorID), "lesson": "fractions"})
	s.finance.Put(string(minorID), map[string]any{"subject_id": string(minorID), "invoice": 42})

	s.registry.Register(&datacat.FailingHandler{
		Handler:    s.sessions,
		FailDelete: true,
		Err:        errors.New("search index unreachable"),
	})

	_, err := s.svc.Revoke(context.Background(), rec.ID, guardianID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	// Nothing observable changed: data intact, consent still granted.
	s.Len(s.sessions.Rows(string(minorID)), 1)
	s.Len(s.finance.Rows(string(minorID)), 1)
	latest, err := s.consents.FindByID(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusGranted, latest.Status)
	s.Equal(1, latest.Version)
}

func (s *ServiceSuite) TestRevokeIsIdempotent() {
	rec := s.grantMinorConsent()
	first, err := s.svc.Revoke(context.Background(), rec.ID, guardianID, "done with the platform")
	s.Require().NoError(err)

	second, err := s.svc.Revoke(context.Background(), rec.ID, guardianID, "again")
	s.Require().NoError(err)
	s.False(second.DataDeleted)
	s.Equal(first.Record.Version, second.Record.Version)
	s.Equal(first.Record.RevokedAt, second.Record.RevokedAt)
	s.Equal("done with the platform", second.Record.RevocationReason)
}

func (s *ServiceSuite) TestRevokePendingSkipsCascade() {
	out := s.requestMinorConsent()
	s.sessions.Put(string(minorID), map[string]any{"subject_id": string(minorID), "lesson": "fractions"})

	res, err := s.svc.Revoke(context.Background(), out.Record.ID, guardianID, "changed my mind")
	s.Require().NoError(err)
	s.False(res.DataDeleted, "nothing was ever processed under a pending consent")
	s.Len(s.sessions.Rows(string(minorID)), 1)
}

func (s *ServiceSuite) TestListDerivesExpiredStatus() {
	granted := s.now.Add(-400 * 24 * time.Hour)
	expires := granted.AddDate(0, 0, 365)
	rec := &models.Record{
		ID:        id.NewConsentID(),
		SubjectID: teenID,
		Type:      models.TypeMarketing,
		Purposes:  []models.Purpose{models.PurposeMarketing},
		Status:    models.StatusGranted,
		GrantedBy: teenID.Actor(),
		GrantedAt: &granted,
		ExpiresAt: &expires,
		CreatedAt: granted,
	}
	s.Require().NoError(s.consents.Append(context.Background(), rec))

	records, err := s.svc.List(context.Background(), teenID, teenID.Actor(), nil)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(models.StatusExpired, records[0].Status)
}

func (s *ServiceSuite) TestListRequiresStanding() {
	_, err := s.svc.List(context.Background(), minorID, strangerID, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.svc.List(context.Background(), minorID, guardianID, nil)
	s.NoError(err)
}
