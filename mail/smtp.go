package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds relay credentials and message defaults.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// SMTPMailer delivers verification codes over SMTP.
type SMTPMailer struct {
	from    string
	subject string
	send    func(*gomail.Message) error
}

// NewSMTPMailer validates cfg and returns a mailer that dials per message.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.New("smtp port out of range")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address required")
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "Your verification code"
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPMailer{
		from:    cfg.From,
		subject: subject,
		send:    func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}, nil
}

// SendVerificationCode builds and sends one message. The dial itself is not
// cancellable, so ctx is only checked before dialing.
func (s *SMTPMailer) SendVerificationCode(ctx context.Context, to, displayName, code string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(s.message(to, displayName, code, expiresAt)); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *SMTPMailer) message(to, displayName, code string, expiresAt time.Time) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	if displayName != "" {
		m.SetAddressHeader("To", to, displayName)
	} else {
		m.SetHeader("To", to)
	}
	m.SetHeader("Subject", s.subject)

	greeting := "Hi"
	if displayName != "" {
		greeting = "Hi " + displayName
	}
	expiry := expiresAt.UTC().Format("15:04 MST")

	m.SetBody("text/plain", fmt.Sprintf("%s,\n\nYour verification code is %s\nIt expires at %s.\n", greeting, code, expiry))
	m.AddAlternative("text/html", fmt.Sprintf(`
		<p>%s,</p>
		<p>Your verification code is <strong>%s</strong></p>
		<p>It expires at %s. If you did not request it, you can ignore this email.</p>
	`, html.EscapeString(greeting), html.EscapeString(code), expiry))
	return m
}
