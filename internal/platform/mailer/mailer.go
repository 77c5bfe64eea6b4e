// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"github.com/oggyb/amora/internal/config"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, e Email) error
}

// New returns an SMTP sender when SMTP_HOST is set, otherwise a sender that
// only logs.
func New(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.SMTP.Host == "" {
		return &LogSender{log: log}
	}
	return &SMTPSender{
		addr: cfg.SMTP.Host + ":" + cfg.SMTP.Port,
		host: cfg.SMTP.Host,
		user: cfg.SMTP.User,
		pass: cfg.SMTP.Password,
		from: cfg.SMTP.From,
		send: smtp.SendMail,
	}
}

type SMTPSender struct {
	addr, host, user, pass, from string
	send                         func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	if e.To == "" || e.Subject == "" {
		return fmt.Errorf("recipient and subject are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}
	if err := s.send(s.addr, auth, s.from, []string{e.To}, buildMessage(s.from, e)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, e Email) []byte {
	contentType := "text/plain; charset=UTF-8"
	if strings.Contains(e.Body, "<html") || strings.Contains(e.Body, "<p>") {
		contentType = "text/html; charset=UTF-8"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n\r\n", contentType)
	b.WriteString(e.Body)
	return []byte(b.String())
}

// LogSender records mail instead of sending it.
type LogSender struct {
	log *slog.Logger

	mu   sync.Mutex
	sent []Email
}

func (l *LogSender) Send(_ context.Context, e Email) error {
	l.mu.Lock()
	l.sent = append(l.sent, e)
	l.mu.Unlock()
	if l.log != nil {
		l.log.Info("email not sent (smtp disabled)", "to", e.To, "subject", e.Subject)
	}
	return nil
}

// Sent returns a copy of everything recorded.
func (l *LogSender) Sent() []Email {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Email(nil), l.sent...)
}
