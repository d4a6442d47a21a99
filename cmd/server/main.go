package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	consenthandler "consentry/internal/consent/handler"
	consentservice "consentry/internal/consent/service"
	consentstore "consentry/internal/consent/store"
	"consentry/internal/consent/verify"

	"consentry/internal/audit"
	"consentry/internal/datacat"
	"consentry/internal/disclosure"
	"consentry/internal/dsr/export"
	dsrhandler "consentry/internal/dsr/handler"
	"consentry/internal/dsr/scheduler"
	dsrservice "consentry/internal/dsr/service"
	dsrstore "consentry/internal/dsr/store"
	identityservice "consentry/internal/identity/service"
	identitystore "consentry/internal/identity/store"
	"consentry/internal/notify"
	"consentry/internal/platform/config"
	"consentry/internal/platform/crypto"
	"consentry/internal/platform/database"
	"consentry/internal/platform/httpserver"
	"consentry/internal/platform/kafka/producer"
	"consentry/internal/platform/logger"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/middleware"
	"consentry/internal/platform/redis"
	"consentry/internal/queue"
	"consentry/internal/retention"
	"consentry/internal/seeder"
	httptransport "consentry/internal/transport/http"
	id "consentry/pkg/domain"
	psync "consentry/pkg/platform/sync"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing consentry",
		"addr", cfg.Addr,
		"dsr_sla", cfg.DSRSLA.String(),
		"sweep_interval", cfg.SweepInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := metrics.New()

	// Persistence: postgres and redis when configured, memory otherwise.
	pool, err := connectDatabase(cfg, log)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	rdb, err := redis.New(ctx, redis.Config{Addr: cfg.RedisAddr})
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	consents := newConsentStore(pool)
	challenges := newChallengeStore(rdb, log)
	exports := newExportStore(rdb)
	requests := newRequestStore(pool)
	disclosures := disclosure.NewInMemoryStore()

	auditor := audit.NewPublisher(audit.NewInMemoryStore(), audit.WithAsyncBuffer(256))
	defer auditor.Close()

	cryptoSvc, err := crypto.NewAEAD([]byte(cfg.EncryptionKey))
	if err != nil {
		log.Error("encryption init failed", "error", err)
		os.Exit(1)
	}

	// Data category handlers. Real deployments register adapters backed by
	// the owning systems; the in-process handlers keep the demo self-contained.
	registry := datacat.NewRegistry(log,
		datacat.NewMemoryHandler(datacat.CategoryProfile, true),
		datacat.NewMemoryHandler(datacat.CategoryPreferences, true),
		datacat.NewMemoryHandler(datacat.CategoryLearningSessions, false),
		datacat.NewMemoryHandler(datacat.CategoryAssessmentAttempts, false),
		datacat.NewMemoryHandler(datacat.CategoryFinancialRecords, false),
		datacat.NewMemoryHandler(datacat.CategoryAuditLogs, false),
	)
	flagHandler := datacat.NewMemoryHandler(datacat.CategoryProcessingMetadata, false)
	registry.Register(flagHandler)

	resolver := retention.NewResolver()

	subjects := identitystore.New()
	identity := identityservice.NewService(subjects, log)
	if err := seeder.SeedSubjects(ctx, subjects); err != nil {
		log.Warn("demo subject seeding failed", "error", err)
	}

	notifier := notify.NewBreakerSender(&notify.LogSender{Logger: log}, log)
	locks := psync.NewShardedMutex()

	consentSvc := consentservice.NewService(
		consents, challenges, identity, resolver, registry, cryptoSvc, auditor, log,
		consentservice.WithNotifier(notifier),
		consentservice.WithMetrics(m),
		consentservice.WithNotifyTimeout(cfg.CollaboratorTimeout),
		consentservice.WithLocks(locks),
	)
	engine := verify.NewEngine(consents, challenges, identity, auditor, log,
		verify.WithMetrics(m),
		verify.WithTimeout(cfg.CollaboratorTimeout),
	)

	jobs, closeJobs, err := newJobQueue(cfg, log)
	if err != nil {
		log.Error("job queue init failed", "error", err)
		os.Exit(1)
	}
	defer closeJobs()

	dsrSvc := dsrservice.NewService(dsrservice.Deps{
		Requests:    requests,
		Identity:    identity,
		Consents:    consents,
		Registry:    registry,
		Retention:   resolver,
		Crypto:      cryptoSvc,
		Exports:     exports,
		Tokens:      export.NewTokenCodec([]byte(cfg.ExportSigningKey)),
		Disclosures: disclosures,
		Flags:       dsrservice.NewCategoryFlagRecorder(flagHandler),
		Auditor:     auditor,
		Logger:      log,
	},
		dsrservice.WithSLA(cfg.DSRSLA),
		dsrservice.WithWarningWindow(cfg.SLAWarningWindow),
		dsrservice.WithExportTTL(cfg.ExportTokenTTL),
		dsrservice.WithNotifier(notifier),
		dsrservice.WithEnqueuer(jobs),
		dsrservice.WithMetrics(m),
		dsrservice.WithLocks(locks),
	)

	// The in-process queue consumes immediately; a kafka deployment runs a
	// separate consumer binary against the same topic.
	if mem, ok := jobs.(*queue.Memory); ok {
		mem.OnJob(func(jobCtx context.Context, payload []byte) error {
			var p dsrservice.ProcessPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			jobCtx = middleware.WithActor(jobCtx, id.ActorID("system"))
			_, err := dsrSvc.Process(jobCtx, p.RequestID)
			return err
		})
	}

	sweeper := scheduler.New(dsrSvc, log, cfg.SweepBatchSize)
	go sweeper.Run(ctx, cfg.SweepInterval)

	router := httptransport.NewRouter(log,
		consenthandler.New(consentSvc, engine, log, m),
		dsrhandler.New(dsrSvc, log, m),
	)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func connectDatabase(cfg config.Server, log *slog.Logger) (*database.Pool, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		log.Info("no DATABASE_URL set, using in-memory consent and request stores")
	}
	return pool, nil
}

func newConsentStore(pool *database.Pool) consentstore.Store {
	if pool != nil {
		return consentstore.NewPostgres(pool.DB())
	}
	return consentstore.New()
}

func newRequestStore(pool *database.Pool) dsrstore.Store {
	if pool != nil {
		return dsrstore.NewPostgres(pool.DB())
	}
	return dsrstore.New()
}

func newChallengeStore(rdb *redisclient.Client, log *slog.Logger) consentstore.ChallengeStore {
	if rdb != nil {
		return consentstore.NewRedisChallengeStore(rdb)
	}
	log.Info("no REDIS_ADDR set, using in-memory challenge store")
	return consentstore.NewInMemoryChallengeStore()
}

func newExportStore(rdb *redisclient.Client) export.Store {
	if rdb != nil {
		return export.NewRedisStore(rdb)
	}
	return export.NewInMemoryStore()
}

func newJobQueue(cfg config.Server, log *slog.Logger) (queue.Enqueuer, func(), error) {
	if cfg.KafkaBrokers == "" {
		return queue.NewMemory(), func() {}, nil
	}
	prod, err := producer.New(producer.DefaultConfig(cfg.KafkaBrokers), log)
	if err != nil {
		return nil, nil, err
	}
	return queue.NewKafka(prod, "consentry"), prod.Close, nil
}
