package mail

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mailer sends the account lifecycle messages.
type Mailer interface {
	// SendVerification delivers the email-verification link for a new
	// account.
	SendVerification(ctx context.Context, to, name, token string) error
	// SendPasswordReset delivers the password-reset link.
	SendPasswordReset(ctx context.Context, to, name, token string) error
	// SendWelcome delivers the post-verification welcome message.
	SendWelcome(ctx context.Context, to, name string) error
}

// LogMailer writes every message to the log instead of delivering it.
type LogMailer struct {
	log  *logrus.Logger
	from string
}

// NewLogMailer creates a log-only mailer. A nil logger gets a default
// one.
func NewLogMailer(log *logrus.Logger, from string) *LogMailer {
	if log == nil {
		log = logrus.New()
	}
	return &LogMailer{log: log, from: from}
}

func (m *LogMailer) SendVerification(_ context.Context, to, name, token string) error {
	m.log.WithFields(logrus.Fields{
		"from":  m.from,
		"to":    to,
		"name":  name,
		"token": token,
		"kind":  "verification",
	}).Info("outbound mail")
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, name, token string) error {
	m.log.WithFields(logrus.Fields{
		"from":  m.from,
		"to":    to,
		"name":  name,
		"token": token,
		"kind":  "password_reset",
	}).Info("outbound mail")
	return nil
}

func (m *LogMailer) SendWelcome(_ context.Context, to, name string) error {
	m.log.WithFields(logrus.Fields{
		"from": m.from,
		"to":   to,
		"name": name,
		"kind": "welcome",
	}).Info("outbound mail")
	return nil
}
