// Package notify delivers operator alerts over email. The broker treats the
// operator channel as best-effort: a failed notification is logged, never
// propagated into the messaging flow that triggered it.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/inkworks/booking-broker/pkg/logging"
)

// defaultSubjectPrefix tags every operator alert so handover and payment
// emails sort together in the artist's inbox.
const defaultSubjectPrefix = "[Bookings]"

// EmailSender defines the interface for sending operator alert emails.
// Implementations can be swapped (SendGrid, SES, stub) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one operator alert: a handover, payment, or follow-up
// notice composed by the service that raised it.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

// alertSubject applies the inbox prefix. Subjects already carrying the
// prefix pass through unchanged, and an empty subject still yields a
// recognizable alert.
func alertSubject(prefix, subject string) string {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	if subject == "" {
		return prefix + " Operator alert"
	}
	if strings.HasPrefix(subject, prefix) {
		return subject
	}
	return prefix + " " + subject
}

// SendGridSender sends operator alerts via the SendGrid API.
type SendGridSender struct {
	client        *sendgrid.Client
	fromEmail     string
	fromName      string
	subjectPrefix string
	logger        *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey        string
	FromEmail     string
	FromName      string
	SubjectPrefix string
}

// NewSendGridSender creates a new SendGrid alert sender.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Booking Broker"
	}
	return &SendGridSender{
		client:        sendgrid.NewSendClient(cfg.APIKey),
		fromEmail:     cfg.FromEmail,
		fromName:      cfg.FromName,
		subjectPrefix: cfg.SubjectPrefix,
		logger:        logger,
	}
}

// Send delivers one operator alert via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if msg.To == "" {
		return fmt.Errorf("notify: alert recipient missing")
	}

	subject := alertSubject(s.subjectPrefix, msg.Subject)
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	var message *mail.SGMailV3
	if msg.HTML != "" {
		message = mail.NewSingleEmail(from, subject, to, msg.Body, msg.HTML)
	} else {
		message = mail.NewSingleEmail(from, subject, to, msg.Body, msg.Body)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid alert failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}

	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("operator alert sent via sendgrid", "to", msg.To, "subject", subject, "status", response.StatusCode)
	return nil
}

// StubEmailSender is a no-op sender for testing or when alerts are disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the alert but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub sender: would send operator alert", "to", msg.To, "subject", msg.Subject)
	return nil
}
