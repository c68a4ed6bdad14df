// Package notify delivers reports over email and webhooks.
package notify

import (
	"context"
	"crypto/tls"
	"errors"

	mail "github.com/go-mail/mail/v2"

	"github.com/devraulu/airank/pkg/config"
)

var ErrNotConfigured = errors.New("notify: sink not configured")

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type EmailSink struct {
	dialer *mail.Dialer
	from   string
}

// NewEmailSink returns a sink that sends through SMTP with mandatory
// STARTTLS.
func NewEmailSink(cfg config.SMTPConfig) (*EmailSink, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, ErrNotConfigured
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	d := mail.NewDialer(cfg.Host, port, cfg.User, cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}

	return &EmailSink{dialer: d, from: cfg.From}, nil
}

func (s *EmailSink) Send(ctx context.Context, m Message) error {
	if len(m.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(buildMessage(s.from, m))
}

func buildMessage(from string, m Message) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", m.To...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)
	return msg
}
