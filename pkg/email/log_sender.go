package email

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
)

// LogSender writes emails to the logger instead of delivering them.
// Used when Postmark is not configured.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a sender that logs every email at info level.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: logger.OrDiscard(log).With(logger.Component("email"))}
}

func (s *LogSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email not delivered, postmark disabled",
		logger.Email(params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag),
	)
	return nil
}

// NewSender picks Postmark when credentials are present and the log sender otherwise.
func NewSender(cfg Config, log *slog.Logger) (EmailSender, error) {
	if !cfg.Enabled() {
		return NewLogSender(log), nil
	}
	return NewPostmarkClient(cfg)
}
