package email

import (
	"context"
	"log/slog"

	"github.com/funnelworks/funnel/internal/sequences/application/services"
	"github.com/google/uuid"
)

// LogSender implements services.EmailSender by logging instead of sending.
// Used in local mode where no provider is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new logging sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the email and returns a synthetic message id.
func (s *LogSender) Send(ctx context.Context, email services.OutboundEmail) (string, error) {
	id := "local-" + uuid.NewString()
	s.logger.Info("email dispatch skipped, no provider configured",
		"to", email.To, "subject", email.Subject, "message_id", id)
	return id, nil
}
