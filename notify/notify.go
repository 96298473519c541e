// Package notify delivers best-effort notifications to the moderator
// team. Delivery failures are reported to the caller, who is expected
// to log and move on; nothing here is load-bearing.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/nasermirzaei89/marginalia/flags"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	// Moderators is the list of recipient addresses.
	Moderators []string
}

// Enabled reports whether the configuration is complete enough to send
// mail.
func (cfg SMTPConfig) Enabled() bool {
	return cfg.Host != "" && cfg.Port != "" && cfg.From != "" && len(cfg.Moderators) > 0
}

// SMTPNotifier mails the moderator team. When the SMTP configuration is
// incomplete the notifier is disabled and sends become no-ops.
type SMTPNotifier struct {
	cfg SMTPConfig
}

var _ flags.Notifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if !cfg.Enabled() {
		slog.Warn("smtp notifier disabled: incomplete smtp configuration")
	}

	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) NotifyModerators(ctx context.Context, subject, body string) error {
	if !n.cfg.Enabled() {
		return nil
	}

	addr := n.cfg.Host + ":" + n.cfg.Port

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s",
		strings.Join(n.cfg.Moderators, ","), n.cfg.From, subject, body))

	err := smtp.SendMail(addr, auth, n.cfg.From, n.cfg.Moderators, msg)
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}

// NopNotifier drops every notification.
type NopNotifier struct{}

var _ flags.Notifier = (*NopNotifier)(nil)

func (NopNotifier) NotifyModerators(ctx context.Context, subject, body string) error {
	return nil
}
