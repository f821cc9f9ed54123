package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
)

// Message is a templated outbound mail
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a message and reports the result. Callers treat delivery as
// fire-and-forget: a failure is logged, never propagated to the HTTP response.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail over plain SMTP with optional auth
type SMTPMailer struct {
	cfg *config.MailConfig
}

// NewSMTPMailer creates a mailer for the configured SMTP relay
func NewSMTPMailer(cfg *config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, msg.To, msg.Subject, msg.Body)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(body))
}

// LogMailer logs messages instead of sending them; used in development and
// whenever no SMTP host is configured
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer creates a mailer that only logs
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.log.Info("Mail suppressed (no SMTP host configured)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// FromConfig picks the SMTP mailer when a host is configured, the log mailer
// otherwise
func FromConfig(cfg *config.MailConfig, log *zap.Logger) Mailer {
	if cfg.Host == "" {
		return NewLogMailer(log)
	}
	return NewSMTPMailer(cfg)
}
