package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consentry/internal/audit"
	consentmodels "consentry/internal/consent/models"
	consentstore "consentry/internal/consent/store"
	"consentry/internal/datacat"
	"consentry/internal/disclosure"
	"consentry/internal/dsr/export"
	"consentry/internal/dsr/models"
	"consentry/internal/dsr/service"
	dsrstore "consentry/internal/dsr/store"
	identitymodels "consentry/internal/identity/models"
	identityservice "consentry/internal/identity/service"
	identitystore "consentry/internal/identity/store"
	"consentry/internal/notify"
	"consentry/internal/platform/crypto"
	"consentry/internal/queue"
	"consentry/internal/retention"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

const (
	subjectID  = id.SubjectID("student-1")
	minorID    = id.SubjectID("student-minor")
	guardianID = id.ActorID("guardian-1")
	strangerID = id.ActorID("actor-stranger")
)

type OrchestratorSuite struct {
	suite.Suite

	now         time.Time
	requests    *dsrstore.InMemoryStore
	consents    *consentstore.InMemoryStore
	profile     *datacat.MemoryHandler
	preferences *datacat.MemoryHandler
	sessions    *datacat.MemoryHandler
	finance     *datacat.MemoryHandler
	procMeta    *datacat.MemoryHandler
	registry    *datacat.Registry
	exports     *export.InMemoryStore
	notifier    *notify.Recorder
	disclosures *disclosure.InMemoryStore
	jobs        *queue.Memory
	svc         *service.Service
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	idStore := identitystore.New()
	s.Require().NoError(idStore.Save(context.Background(), &identitymodels.Subject{
		ID:          subjectID,
		Name:        "Ada Lovelace",
		Email:       "ada@example.org",
		DateOfBirth: time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC),
	}))
	s.Require().NoError(idStore.Save(context.Background(), &identitymodels.Subject{
		ID:          minorID,
		Name:        "Milo Park",
		DateOfBirth: time.Date(2016, time.May, 20, 0, 0, 0, 0, time.UTC),
		Guardians:   []id.ActorID{guardianID},
	}))
	identity := identityservice.NewService(idStore, logger, identityservice.WithClock(clock))

	s.profile = datacat.NewMemoryHandler(datacat.CategoryProfile, true)
	s.preferences = datacat.NewMemoryHandler(datacat.CategoryPreferences, true)
	s.sessions = datacat.NewMemoryHandler(datacat.CategoryLearningSessions, false)
	s.finance = datacat.NewMemoryHandler(datacat.CategoryFinancialRecords, false)
	s.procMeta = datacat.NewMemoryHandler(datacat.CategoryProcessingMetadata, false)
	s.registry = datacat.NewRegistry(logger, s.profile, s.preferences, s.sessions, s.finance, s.procMeta)

	cryptoSvc, err := crypto.NewAEAD(nil)
	s.Require().NoError(err)

	s.requests = dsrstore.New()
	s.consents = consentstore.New()
	s.exports = export.NewInMemoryStore().WithClock(clock)
	s.notifier = notify.NewRecorder()
	s.disclosures = disclosure.NewInMemoryStore()
	s.jobs = queue.NewMemory()

	s.svc = service.NewService(service.Deps{
		Requests:    s.requests,
		Identity:    identity,
		Consents:    s.consents,
		Registry:    s.registry,
		Retention:   retention.NewResolver(),
		Crypto:      cryptoSvc,
		Exports:     s.exports,
		Tokens:      export.NewTokenCodec([]byte("test-signing-key")).WithClock(clock),
		Disclosures: s.disclosures,
		Flags:       service.NewCategoryFlagRecorder(s.procMeta),
		Auditor:     audit.NewPublisher(audit.NewInMemoryStore()),
		Logger:      logger,
	},
		service.WithClock(clock),
		service.WithNotifier(s.notifier),
		service.WithEnqueuer(s.jobs),
	)
}

func (s *OrchestratorSuite) submit(t models.RequestType) *models.Request {
	req, err := s.svc.Submit(context.Background(), service.SubmitInput{
		Type:        t,
		SubjectID:   subjectID,
		RequesterID: subjectID.Actor(),
	})
	s.Require().NoError(err)
	return req
}

func (s *OrchestratorSuite) seedSubjectData() {
	s.profile.Put(string(subjectID), map[string]any{
		"subject_id": string(subjectID),
		"name":       "Ada Lovelace",
		"email":      "ada@example.org",
	})
	s.preferences.Put(string(subjectID), map[string]any{
		"subject_id": string(subjectID),
		"theme":      "dark",
	})
	s.sessions.Put(string(subjectID), map[string]any{
		"subject_id": string(subjectID),
		"lesson":     "fractions",
		"score":      87,
	})
	s.finance.Put(string(subjectID), map[string]any{
		"subject_id": string(subjectID),
		"name":       "Ada Lovelace",
		"invoice":    42,
	})
}

func (s *OrchestratorSuite) TestSubmitFixesDueDateAndEnqueues() {
	req := s.submit(models.TypeAccess)

	s.Equal(models.StatusPending, req.Status)
	s.Equal(s.now, req.SubmittedAt)
	s.Equal(s.now.Add(30*24*time.Hour), req.DueDate)

	jobs := s.jobs.Jobs()
	s.Require().Len(jobs, 1)
	s.Equal(queue.JobProcessDSR, jobs[0].Job)
	var payload service.ProcessPayload
	s.Require().NoError(json.Unmarshal(jobs[0].Payload, &payload))
	s.Equal(req.ID, payload.RequestID)
}

func (s *OrchestratorSuite) TestEveryTypeRejectsUnauthorizedRequesters() {
	for t := range models.ValidTypes {
		s.Run(string(t), func() {
			_, err := s.svc.Submit(context.Background(), service.SubmitInput{
				Type:        t,
				SubjectID:   subjectID,
				RequesterID: strangerID,
				Corrections: map[string]string{"name": "X"},
			})
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "type %s: got %v", t, err)
		})
	}
}

func (s *OrchestratorSuite) TestGuardianMaySubmitForMinor() {
	req, err := s.svc.Submit(context.Background(), service.SubmitInput{
		Type:        models.TypeAccess,
		SubjectID:   minorID,
		RequesterID: guardianID,
	})
	s.Require().NoError(err)
	s.Equal(guardianID, req.RequesterID)
}

func (s *OrchestratorSuite) TestWithdrawIsIdempotentAndPendingOnly() {
	req := s.submit(models.TypeErasure)

	withdrawn, err := s.svc.Withdraw(context.Background(), req.ID, subjectID.Actor())
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, withdrawn.Status)

	again, err := s.svc.Withdraw(context.Background(), req.ID, subjectID.Actor())
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, again.Status)

	completedReq := s.submit(models.TypeAccess)
	_, err = s.svc.Process(context.Background(), completedReq.ID)
	s.Require().NoError(err)
	_, err = s.svc.Withdraw(context.Background(), completedReq.ID, subjectID.Actor())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *OrchestratorSuite) TestAccessCollectsByCategoryAndLogsDisclosure() {
	s.seedSubjectData()
	granted := s.now.Add(-time.Hour)
	s.Require().NoError(s.consents.Append(context.Background(), &consentmodels.Record{
		ID:        id.NewConsentID(),
		SubjectID: subjectID,
		Type:      consentmodels.TypeAnalytics,
		Purposes:  []consentmodels.Purpose{consentmodels.PurposeAnalytics},
		Status:    consentmodels.StatusGranted,
		GrantedBy: subjectID.Actor(),
		GrantedAt: &granted,
		CreatedAt: granted,
	}))

	req := s.submit(models.TypeAccess)
	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)

	s.Equal(models.StatusCompleted, done.Status)
	s.Require().NotNil(done.CompletedAt)
	s.Require().NotNil(done.Result)

	access := done.Result.Access
	s.Len(access[datacat.CategoryProfile], 1)
	s.Len(access[datacat.CategoryLearningSessions], 1)
	s.Len(access[datacat.Category("consent_records")], 1)
	s.Equal("granted", access[datacat.Category("consent_records")][0]["status"])

	log, err := s.svc.Disclosures(context.Background(), subjectID, subjectID.Actor())
	s.Require().NoError(err)
	s.Require().Len(log, 1)
	s.Equal("dsr_access", log[0].Purpose)
}

func (s *OrchestratorSuite) TestConcurrentClaimsDispatchOnce() {
	s.seedSubjectData()
	req := s.submit(models.TypeAccess)

	// Queue consumer and SLA sweeper racing on the same pending request:
	// the conditional claim lets exactly one of them dispatch.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.Process(context.Background(), req.ID)
		}()
	}
	wg.Wait()

	var losses int
	for _, err := range errs {
		if err != nil {
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)
			losses++
		}
	}
	s.Equal(1, losses, "one claimant wins, one stands down")

	done, err := s.svc.Get(context.Background(), req.ID, subjectID.Actor())
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)
	s.Equal(1, done.Attempts)

	log, err := s.svc.Disclosures(context.Background(), subjectID, subjectID.Actor())
	s.Require().NoError(err)
	s.Len(log, 1, "a lost claim must not log a second disclosure")
}

func (s *OrchestratorSuite) TestAccessExcludesInternalFields() {
	identity := datacat.NewMemoryHandler(datacat.CategoryIdentity, true, datacat.WithInternalFields("password_hash"))
	identity.Put(string(subjectID), map[string]any{
		"subject_id":    string(subjectID),
		"email":         "ada@example.org",
		"password_hash": "argon2id$...",
	})
	s.registry.Register(identity)

	req := s.submit(models.TypeAccess)
	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)

	rows := done.Result.Access[datacat.CategoryIdentity]
	s.Require().Len(rows, 1)
	s.NotContains(rows[0], "password_hash")
}

func (s *OrchestratorSuite) TestErasureHonorsRetentionOverrides() {
	s.seedSubjectData()

	req := s.submit(models.TypeErasure)
	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)

	s.Equal(models.StatusCompleted, done.Status)
	s.ElementsMatch([]datacat.Category{
		datacat.CategoryProfile,
		datacat.CategoryPreferences,
		datacat.CategoryLearningSessions,
		datacat.CategoryProcessingMetadata,
	}, done.Result.Deleted)

	s.Require().Len(done.Result.Retained, 1)
	s.Equal(datacat.CategoryFinancialRecords, done.Result.Retained[0].Category)
	s.Equal("tax_requirement", done.Result.Retained[0].LegalBasis)
	s.Equal(2555, done.Result.Retained[0].MinDurationDays)

	s.Empty(s.profile.Rows(string(subjectID)))
	s.Empty(s.preferences.Rows(string(subjectID)))
	s.Empty(s.finance.Rows(string(subjectID)), "financial rows rekeyed under a pseudonym")
}

func (s *OrchestratorSuite) TestErasureFailureIsRetryEligibleNotStuck() {
	s.seedSubjectData()
	s.registry.Register(&datacat.FailingHandler{
		Handler:    s.sessions,
		FailDelete: true,
		Err:        errors.New("warehouse offline"),
	})

	req := s.submit(models.TypeErasure)
	_, err := s.svc.Process(context.Background(), req.ID)
	s.Require().Error(err)

	// No partial deletion, request back to pending, privacy team told.
	s.Len(s.profile.Rows(string(subjectID)), 1)
	s.Len(s.finance.Rows(string(subjectID)), 1)

	stored, err := s.requests.FindByID(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.Equal(1, stored.Attempts)
	s.NotEmpty(s.notifier.SentTo(notify.ChannelPrivacyTeam))

	// The sweep retries it once the handler recovers.
	s.registry.Register(s.sessions)
	processed, err := s.svc.ProcessPending(context.Background(), 10)
	s.Require().NoError(err)
	s.Equal(1, processed)
}

func (s *OrchestratorSuite) TestPortabilityExportIsSingleUseAndExpires() {
	s.seedSubjectData()

	req := s.submit(models.TypePortability)
	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)
	token := done.Result.ExportRef
	s.Require().NotEmpty(token)

	data, contentType, err := s.svc.Download(context.Background(), token)
	s.Require().NoError(err)
	s.Equal("application/json", contentType)

	var payload struct {
		SubjectID string                      `json:"subject_id"`
		Data      map[string][]map[string]any `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(data, &payload))
	s.Equal(string(subjectID), payload.SubjectID)
	s.Contains(payload.Data, string(datacat.CategoryProfile))
	s.NotContains(payload.Data, string(datacat.CategoryLearningSessions), "system-derived data is not portable")

	// Second redemption of the same token fails: single use.
	_, _, err = s.svc.Download(context.Background(), token)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OrchestratorSuite) TestPortabilityTokenExpiresAfterSevenDays() {
	s.seedSubjectData()

	req := s.submit(models.TypePortability)
	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)

	s.now = s.now.Add(7*24*time.Hour + time.Minute)
	_, _, err = s.svc.Download(context.Background(), done.Result.ExportRef)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)
}

func (s *OrchestratorSuite) TestRectificationAppliesAllowListedFields() {
	req, err := s.svc.Submit(context.Background(), service.SubmitInput{
		Type:        models.TypeRectification,
		SubjectID:   subjectID,
		RequesterID: subjectID.Actor(),
		Corrections: map[string]string{"name": "Ada King", "preferred_language": "fr"},
	})
	s.Require().NoError(err)

	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal([]string{"name", "preferred_language"}, done.Result.UpdatedFields)
}

func (s *OrchestratorSuite) TestRectificationOutsideAllowListIsRejectedPermanently() {
	req, err := s.svc.Submit(context.Background(), service.SubmitInput{
		Type:        models.TypeRectification,
		SubjectID:   subjectID,
		RequesterID: subjectID.Actor(),
		Corrections: map[string]string{"date_of_birth": "1990-01-01"},
	})
	s.Require().NoError(err)

	_, err = s.svc.Process(context.Background(), req.ID)
	s.Require().Error(err)

	stored, err := s.requests.FindByID(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, stored.Status, "a bad field list can never succeed on retry")
}

func (s *OrchestratorSuite) TestRestrictionRecordsProcessingFlag() {
	req, err := s.svc.Submit(context.Background(), service.SubmitInput{
		Type:        models.TypeRestriction,
		SubjectID:   subjectID,
		RequesterID: subjectID.Actor(),
		Notes:       "stop profiling",
	})
	s.Require().NoError(err)

	done, err := s.svc.Process(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal("restriction", done.Result.RestrictionKind)

	rows := s.procMeta.Rows(string(subjectID))
	s.Require().Len(rows, 1)
	s.Equal("restriction", rows[0]["flag"])
	s.NotEmpty(s.notifier.SentTo(notify.ChannelPrivacyTeam))
}

func (s *OrchestratorSuite) TestSLAWarningsFireOncePerDay() {
	req := s.submit(models.TypeAccess)

	// Nothing to warn about far from the deadline.
	warned, err := s.svc.CheckSLACompliance(context.Background())
	s.Require().NoError(err)
	s.Zero(warned)

	// 25 days in: inside the 7-day warning window.
	s.now = s.now.Add(25 * 24 * time.Hour)
	warned, err = s.svc.CheckSLACompliance(context.Background())
	s.Require().NoError(err)
	s.Equal(1, warned)
	s.Len(s.notifier.SentTo(notify.ChannelPrivacyTeam), 1)

	// Same day again: silent.
	s.now = s.now.Add(2 * time.Hour)
	warned, err = s.svc.CheckSLACompliance(context.Background())
	s.Require().NoError(err)
	s.Zero(warned)

	// Next day: one more warning, and the due date never moved.
	s.now = s.now.Add(24 * time.Hour)
	warned, err = s.svc.CheckSLACompliance(context.Background())
	s.Require().NoError(err)
	s.Equal(1, warned)

	stored, err := s.requests.FindByID(context.Background(), req.ID)
	s.Require().NoError(err)
	s.Equal(req.DueDate, stored.DueDate)
}

func (s *OrchestratorSuite) TestProcessPendingIsBounded() {
	for i := 0; i < 3; i++ {
		s.submit(models.TypeAccess)
	}
	processed, err := s.svc.ProcessPending(context.Background(), 2)
	s.Require().NoError(err)
	s.Equal(2, processed)

	pending, err := s.requests.ListPending(context.Background(), 0)
	s.Require().NoError(err)
	s.Len(pending, 1)
}
