// The sweeper runs the SLA compliance and retry sweep on a cron schedule,
// for deployments that keep the sweep out of the serving process. It shares
// the server's configuration surface.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/robfig/cron/v3"

	"consentry/internal/audit"
	consentstore "consentry/internal/consent/store"
	"consentry/internal/datacat"
	"consentry/internal/disclosure"
	"consentry/internal/dsr/export"
	"consentry/internal/dsr/scheduler"
	dsrservice "consentry/internal/dsr/service"
	dsrstore "consentry/internal/dsr/store"
	identityservice "consentry/internal/identity/service"
	identitystore "consentry/internal/identity/store"
	"consentry/internal/notify"
	"consentry/internal/platform/config"
	"consentry/internal/platform/crypto"
	"consentry/internal/platform/logger"
	"consentry/internal/platform/metrics"
	"consentry/internal/retention"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	schedule := os.Getenv("CONSENTRY_SWEEP_CRON")
	if schedule == "" {
		schedule = "*/15 * * * *"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cryptoSvc, err := crypto.NewAEAD([]byte(cfg.EncryptionKey))
	if err != nil {
		log.Error("encryption init failed", "error", err)
		os.Exit(1)
	}

	auditor := audit.NewPublisher(audit.NewInMemoryStore())
	defer auditor.Close()

	registry := datacat.NewRegistry(log)
	flagHandler := datacat.NewMemoryHandler(datacat.CategoryProcessingMetadata, false)
	registry.Register(flagHandler)

	identity := identityservice.NewService(identitystore.New(), log)

	svc := dsrservice.NewService(dsrservice.Deps{
		Requests:    dsrstore.New(),
		Identity:    identity,
		Consents:    consentstore.New(),
		Registry:    registry,
		Retention:   retention.NewResolver(),
		Crypto:      cryptoSvc,
		Exports:     export.NewInMemoryStore(),
		Tokens:      export.NewTokenCodec([]byte(cfg.ExportSigningKey)),
		Disclosures: disclosure.NewInMemoryStore(),
		Flags:       dsrservice.NewCategoryFlagRecorder(flagHandler),
		Auditor:     auditor,
		Logger:      log,
	},
		dsrservice.WithSLA(cfg.DSRSLA),
		dsrservice.WithWarningWindow(cfg.SLAWarningWindow),
		dsrservice.WithNotifier(&notify.LogSender{Logger: log}),
		dsrservice.WithMetrics(metrics.New()),
	)

	sweeper := scheduler.New(svc, log, cfg.SweepBatchSize)

	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		report, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Error("sweep failed", "error", err)
			return
		}
		log.Info("sweep finished", "warned", report.Warned, "processed", report.Processed)
	})
	if err != nil {
		log.Error("invalid sweep schedule", "schedule", schedule, "error", err)
		os.Exit(1)
	}

	log.Info("starting sweeper", "schedule", schedule, "batch", cfg.SweepBatchSize)
	c.Start()

	<-ctx.Done()
	cronCtx := c.Stop()
	<-cronCtx.Done()
	log.Info("sweeper stopped")
}
