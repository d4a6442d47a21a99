package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"consentry/internal/audit"
	consentstore "consentry/internal/consent/store"
	"consentry/internal/datacat"
	"consentry/internal/disclosure"
	"consentry/internal/dsr/export"
	"consentry/internal/dsr/models"
	"consentry/internal/dsr/scheduler"
	"consentry/internal/dsr/service"
	dsrstore "consentry/internal/dsr/store"
	identitymodels "consentry/internal/identity/models"
	identityservice "consentry/internal/identity/service"
	identitystore "consentry/internal/identity/store"
	"consentry/internal/notify"
	"consentry/internal/platform/crypto"
	"consentry/internal/retention"
	id "consentry/pkg/domain"
)

func newSweepFixture(t *testing.T, now *time.Time) (*service.Service, *notify.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return *now }

	idStore := identitystore.New()
	require.NoError(t, idStore.Save(context.Background(), &identitymodels.Subject{
		ID:          "student-1",
		Name:        "Ada Lovelace",
		DateOfBirth: time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC),
	}))

	cryptoSvc, err := crypto.NewAEAD(nil)
	require.NoError(t, err)

	procMeta := datacat.NewMemoryHandler(datacat.CategoryProcessingMetadata, false)
	notifier := notify.NewRecorder()
	svc := service.NewService(service.Deps{
		Requests:    dsrstore.New(),
		Identity:    identityservice.NewService(idStore, logger, identityservice.WithClock(clock)),
		Consents:    consentstore.New(),
		Registry:    datacat.NewRegistry(logger, procMeta),
		Retention:   retention.NewResolver(),
		Crypto:      cryptoSvc,
		Exports:     export.NewInMemoryStore().WithClock(clock),
		Tokens:      export.NewTokenCodec([]byte("test-signing-key")).WithClock(clock),
		Disclosures: disclosure.NewInMemoryStore(),
		Flags:       service.NewCategoryFlagRecorder(procMeta),
		Auditor:     audit.NewPublisher(audit.NewInMemoryStore()),
		Logger:      logger,
	},
		service.WithClock(clock),
		service.WithNotifier(notifier),
	)
	return svc, notifier
}

func TestRunOnceProcessesBoundedBatchAndWarns(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc, notifier := newSweepFixture(t, &now)

	subject := id.SubjectID("student-1")
	for i := 0; i < 12; i++ {
		_, err := svc.Submit(context.Background(), service.SubmitInput{
			Type:        models.TypeAccess,
			SubjectID:   subject,
			RequesterID: subject.Actor(),
		})
		require.NoError(t, err)
	}

	sweep := scheduler.New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), 10)

	report, err := sweep.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, report.Processed, "batch size caps one sweep")
	require.Zero(t, report.Warned)

	// The stragglers drain on the next pass, 25 days later and now inside
	// the warning window.
	now = now.Add(25 * 24 * time.Hour)
	report, err = sweep.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 2, report.Warned, "only the still-open requests warrant warnings")
	require.Len(t, notifier.SentTo(notify.ChannelPrivacyTeam), 2)
}
