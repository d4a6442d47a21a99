// Package notify defines the notification collaborator. The engine only
// depends on Sender; delivery, templating, and retries live in the
// notification layer itself.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Channels
const (
	ChannelGuardian    = "guardian"
	ChannelPrivacyTeam = "privacy_team"
)

// Notification is a delivery-agnostic message.
type Notification struct {
	Recipient string
	Channel   string
	Subject   string
	Body      string
	Metadata  map[string]string
}

// Sender delivers notifications. Failures are non-fatal to the caller; the
// notification layer owns its own retry policy.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SendBounded wraps a Send call in a timeout. A slow notification backend
// must never stall a consent or DSR operation; the deadline converts a hang
// into an ordinary (logged, non-fatal) failure.
func SendBounded(ctx context.Context, sender Sender, n Notification, timeout time.Duration, logger *slog.Logger) {
	if sender == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sender.Send(sendCtx, n); err != nil && logger != nil {
		logger.WarnContext(ctx, "notification send failed",
			"channel", n.Channel,
			"recipient", n.Recipient,
			"error", err,
		)
	}
}
