package notify

import (
	"context"
	"log/slog"
	"sync/atomic"

	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/platform/circuit"
)

// probeInterval is how often a send is let through while the circuit is
// open, so consecutive probe successes can close it again.
const probeInterval = 8

// BreakerSender wraps a Sender with a circuit breaker. When the delivery
// backend fails repeatedly the circuit opens and most sends are shed
// immediately instead of eating the collaborator timeout on every call.
// Notifications are best-effort, so a shed send surfaces as an ordinary
// send error.
type BreakerSender struct {
	inner   Sender
	breaker *circuit.Breaker
	logger  *slog.Logger
	calls   atomic.Uint64
}

// NewBreakerSender decorates sender with a named circuit breaker.
func NewBreakerSender(inner Sender, logger *slog.Logger, opts ...circuit.Option) *BreakerSender {
	return &BreakerSender{
		inner:   inner,
		breaker: circuit.New("notify", opts...),
		logger:  logger,
	}
}

func (s *BreakerSender) Send(ctx context.Context, n Notification) error {
	if s.breaker.IsOpen() && s.calls.Add(1)%probeInterval != 0 {
		return dErrors.New(dErrors.CodeTimeout, "notification backend circuit open")
	}

	err := s.inner.Send(ctx, n)
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened && s.logger != nil {
			s.logger.WarnContext(ctx, "notification circuit opened",
				"breaker", s.breaker.Name(),
				"channel", n.Channel,
			)
		}
		return err
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed && s.logger != nil {
		s.logger.InfoContext(ctx, "notification circuit closed", "breaker", s.breaker.Name())
	}
	return nil
}
