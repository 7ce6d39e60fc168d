package email

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"hama/estate/internal/config"
)

// Sender defines the interface for sending emails.
// The rawMessage parameter should contain the full email message, including headers and body, properly formatted.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// Compose builds a plain-text RFC 5322 message.
func Compose(from string, to []string, subject, body string, now time.Time) []byte {
	var sb strings.Builder
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\r\n")
	}
	return []byte(sb.String())
}

// SMTPSender implements the Sender interface over SMTP.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPSender returns an SMTP sender, or a LoggingSender when no SMTP host
// is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		log.Info().Msg("SMTP host not configured, using logging email sender")
		return &LoggingSender{}
	}

	return &SMTPSender{
		from:   cfg.SmtpFromAddress,
		dialer: gomail.NewDialer(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp dial %s:%d: %w", s.dialer.Host, s.dialer.Port, err)
	}
	defer conn.Close()
	if err := conn.Send(s.from, to, bytes.NewReader(rawMessage)); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Info().Strs("to", to).Str("subject", subject).Msg("email sent via SMTP")
	return nil
}

// LoggingSender only logs the email. Used when SMTP isn't configured.
type LoggingSender struct{}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Info().Strs("to", to).Str("subject", subject).Str("raw", string(rawMessage)).Msg("email logged, not sent")
	return nil
}
