package service

import (
	"context"
	"log/slog"

	"citizen-voice/internal/model"
)

// Mailer delivers account emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, user model.User, link string) error
}

// LogMailer writes the message to the log instead of sending it.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, user model.User, link string) error {
	slog.Info("password reset email", "to", user.Email, "link", link)
	return nil
}
