package notifications

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers reset codes as plain-text mail.
type SMTPNotifier struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.From = strings.TrimSpace(cfg.From)

	return &SMTPNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *SMTPNotifier) SendPasswordResetOTP(ctx context.Context, in SendPasswordResetOTPInput) error {
	if n.cfg.Host == "" || n.cfg.Port == "" || n.cfg.From == "" {
		return errors.New("smtp notifier missing configuration")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" || n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := buildMessage(n.cfg.From, in.Email, passwordResetSubject, passwordResetBody(in))

	// smtp.SendMail has no context; run it aside so the caller's deadline holds.
	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, auth, n.cfg.From, []string{in.Email}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send password reset mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
