package mailer

import (
	"context"
	"log/slog"
	"time"

	"natours/internal/model"
)

// LogMailer renders messages and logs their envelope without sending them.
// Bodies are never logged since reset mails carry the plaintext secret.
type LogMailer struct {
	logger     *slog.Logger
	resetValid time.Duration
}

// NewLogMailer returns a mailer for development without an SMTP relay.
func NewLogMailer(logger *slog.Logger, resetValid time.Duration) *LogMailer {
	return &LogMailer{logger: logger, resetValid: resetValid}
}

func (m *LogMailer) SendWelcome(ctx context.Context, user *model.User, url string) error {
	return m.log(ctx, templateWelcome, user, url)
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, user *model.User, resetURL string) error {
	return m.log(ctx, templatePasswordReset, user, resetURL)
}

func (m *LogMailer) log(ctx context.Context, name string, user *model.User, url string) error {
	rendered, err := render(name, user, url, m.resetValid)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "mail not sent, no smtp relay configured",
		"template", rendered.Template,
		"to", rendered.To,
		"subject", rendered.Subject,
	)
	return nil
}
