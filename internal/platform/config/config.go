package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the consent and DSR lifecycle. Each can be overridden via
// environment so deployments in stricter jurisdictions can tighten them.
const (
	DefaultDSRSLA              = 30 * 24 * time.Hour // statutory 30-day response window
	DefaultSLAWarningWindow    = 7 * 24 * time.Hour
	DefaultSweepInterval       = 15 * time.Minute
	DefaultSweepBatchSize      = 10
	DefaultExportTokenTTL      = 7 * 24 * time.Hour
	DefaultCollaboratorTimeout = 5 * time.Second
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr                string
	DatabaseURL         string
	RedisAddr           string
	KafkaBrokers        string
	ExportSigningKey    string
	EncryptionKey       string
	DSRSLA              time.Duration
	SLAWarningWindow    time.Duration
	SweepInterval       time.Duration
	SweepBatchSize      int
	ExportTokenTTL      time.Duration
	CollaboratorTimeout time.Duration
}

// FromEnv builds a Server config from environment variables. A .env file is
// loaded first when present; real environment variables win over it.
func FromEnv() Server {
	_ = godotenv.Load()

	cfg := Server{
		Addr:                getString("CONSENTRY_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		ExportSigningKey:    getString("CONSENTRY_EXPORT_SIGNING_KEY", "dev-export-key-change-in-production"),
		EncryptionKey:       os.Getenv("CONSENTRY_ENCRYPTION_KEY"),
		DSRSLA:              getDuration("CONSENTRY_DSR_SLA", DefaultDSRSLA),
		SLAWarningWindow:    getDuration("CONSENTRY_SLA_WARNING_WINDOW", DefaultSLAWarningWindow),
		SweepInterval:       getDuration("CONSENTRY_SWEEP_INTERVAL", DefaultSweepInterval),
		SweepBatchSize:      getInt("CONSENTRY_SWEEP_BATCH", DefaultSweepBatchSize),
		ExportTokenTTL:      getDuration("CONSENTRY_EXPORT_TOKEN_TTL", DefaultExportTokenTTL),
		CollaboratorTimeout: getDuration("CONSENTRY_COLLABORATOR_TIMEOUT", DefaultCollaboratorTimeout),
	}
	return cfg
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
