package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder captures notifications for assertions in tests and doubles as the
// default sender in single-process deployments.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification{}, r.sent...)
}

// SentTo filters deliveries by channel.
func (r *Recorder) SentTo(channel string) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.sent {
		if n.Channel == channel {
			out = append(out, n)
		}
	}
	return out
}

// LogSender writes notifications to the structured log. Useful when no real
// delivery backend is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "notification",
			"channel", n.Channel,
			"recipient", n.Recipient,
			"subject", n.Subject,
		)
	}
	return nil
}
