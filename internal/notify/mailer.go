package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type SMTPMailer struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.Username != "" {
		host, _, err := net.SplitHostPort(m.Addr)
		if err != nil {
			return fmt.Errorf("smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.From, e.To, e.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(e.Body, "\n", "\r\n"))
	if err := smtp.SendMail(m.Addr, auth, m.From, []string{e.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", e.To, err)
	}
	return nil
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct{ Log *zap.Logger }

func (m *LogMailer) Send(_ context.Context, e Email) error {
	m.Log.Info("email", zap.String("to", e.To), zap.String("subject", e.Subject), zap.Int("bytes", len(e.Body)))
	return nil
}
