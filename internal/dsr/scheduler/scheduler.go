// Package scheduler drives the periodic DSR sweep: SLA warnings plus a
// bounded batch of pending-request processing. The cadence lives outside
// (a ticker in-process, or cron in the sweeper binary); the sweep itself is
// a single synchronous pass.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	dsrservice "consentry/internal/dsr/service"
)

// Sweeper runs DSR maintenance passes.
type Sweeper struct {
	svc       *dsrservice.Service
	logger    *slog.Logger
	batchSize int
}

func New(svc *dsrservice.Service, logger *slog.Logger, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Sweeper{svc: svc, logger: logger, batchSize: batchSize}
}

// SweepReport summarizes one pass.
type SweepReport struct {
	Warned    int
	Processed int
}

// RunOnce performs one full sweep. Both halves run even if the first
// reports an error; a failed warning scan must not stall processing.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	warned, slaErr := s.svc.CheckSLACompliance(ctx)
	report.Warned = warned
	if slaErr != nil {
		s.logger.ErrorContext(ctx, "SLA compliance scan failed", "error", slaErr)
	}

	processed, procErr := s.svc.ProcessPending(ctx, s.batchSize)
	report.Processed = processed
	if procErr != nil {
		s.logger.ErrorContext(ctx, "pending request sweep failed", "error", procErr)
		return report, procErr
	}
	if slaErr != nil {
		return report, slaErr
	}

	s.logger.InfoContext(ctx, "sweep complete", "warned", report.Warned, "processed", report.Processed)
	return report, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}
