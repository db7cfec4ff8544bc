package mail

import (
	"context"

	"usersvc/internal/logger"
)

// LogSender writes messages to the log instead of delivering them.
// It stands in for SMTP when no mail relay credentials are configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.Infof("mail delivery disabled; %s to %s: %s | %s", msg.Kind, msg.To, msg.Subject, msg.Body)
	return nil
}
