package notify

import (
	"context"
	"fmt"

	"github.com/inkworks/booking-broker/pkg/logging"
)

// Service routes operator alerts to the configured email address. A nil or
// disabled service degrades to logging so callers never need to nil-check.
type Service struct {
	email         EmailSender
	operatorEmail string
	operatorName  string
	enabled       bool
	logger        *logging.Logger
}

// NewService creates the operator notification service. With email nil or
// enabled false, alerts are logged and dropped.
func NewService(email EmailSender, operatorEmail, operatorName string, enabled bool, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if operatorName == "" {
		operatorName = "Artist"
	}
	return &Service{
		email:         email,
		operatorEmail: operatorEmail,
		operatorName:  operatorName,
		enabled:       enabled,
		logger:        logger,
	}
}

// NotifyOperator sends one alert to the operator inbox.
func (s *Service) NotifyOperator(ctx context.Context, subject, body string) error {
	if s == nil || !s.enabled || s.email == nil || s.operatorEmail == "" {
		if s != nil {
			s.logger.Info("operator notification skipped", "subject", subject)
		}
		return nil
	}
	msg := EmailMessage{
		To:      s.operatorEmail,
		ToName:  s.operatorName,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: operator alert: %w", err)
	}
	return nil
}
