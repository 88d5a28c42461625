// Package mail sends transactional e-mails to students over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/pkg/circuitbreaker"
	"github.com/admissions-hub/admissions-hub/pkg/retry"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope sender, e.g. "admissions@example.org"
	From string

	// FromName is the display name shown to students
	FromName string
}

// Message is a rendered e-mail.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Validate checks the recipient and content.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return shared.WrapError("mail", "Validate", shared.ErrInvalidEmail, "invalid recipient", err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return shared.NewDomainError("mail", "Validate", shared.ErrEmptyValue, "subject cannot be empty")
	}
	if m.HTMLBody == "" && m.TextBody == "" {
		return shared.NewDomainError("mail", "Validate", shared.ErrEmptyValue, "body cannot be empty")
	}
	return nil
}

// Dialer sends prepared messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer delivers messages through an SMTP relay with retries and a circuit breaker.
type Mailer struct {
	dialer  Dialer
	from    string
	name    string
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewMailer creates a Mailer backed by a gomail SMTP dialer.
func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	return NewMailerWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, logger)
}

// NewMailerWithDialer creates a Mailer over an arbitrary dialer.
func NewMailerWithDialer(dialer Dialer, cfg Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mailer")
	return &Mailer{
		dialer: dialer,
		from:   cfg.From,
		name:   cfg.FromName,
		breaker: circuitbreaker.MailBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.MailRetrier(),
		logger:  logger,
	}
}

// Send delivers one message. SMTP failures are retried; an invalid message
// is rejected before any network call.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	gm := m.build(msg)
	err := m.retrier.Do(ctx, func(ctx context.Context) error {
		err := m.breaker.Execute(ctx, func(context.Context) error {
			return m.dialer.DialAndSend(gm)
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return retry.Permanent(err)
		}
		return retry.Retryable(err)
	})
	if err != nil {
		m.logger.Error("mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return shared.WrapError("mail", "Send", shared.ErrMailDeliveryFailed,
			fmt.Sprintf("send to %s", msg.To), err)
	}

	m.logger.Info("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (m *Mailer) build(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	if m.name != "" {
		gm.SetAddressHeader("From", m.from, m.name)
	} else {
		gm.SetHeader("From", m.from)
	}
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		gm.SetBody("text/plain", msg.TextBody)
		gm.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		gm.SetBody("text/html", msg.HTMLBody)
	default:
		gm.SetBody("text/plain", msg.TextBody)
	}
	return gm
}
