package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
)

// Copy renders outbound message copy for a lead and resolves the
// pre-approved channel template for an intent (empty when none).
type Copy interface {
	Render(leadID uuid.UUID, key string, params map[string]string) (string, error)
	WhatsAppTemplate(intent string) string
}

// Notifier alerts the human operator.
type Notifier interface {
	NotifyOperator(ctx context.Context, subject, body string) error
}

// OutboundSender is the arbiter-fronted delivery path.
type OutboundSender interface {
	Send(ctx context.Context, lead *leads.Lead, out messaging.Outbound) (messaging.Verdict, error)
}

// DepositSender creates the checkout session and sends the deposit link.
// Wired from the payments package; nil disables the approve shortcut.
type DepositSender interface {
	SendDepositLink(ctx context.Context, leadID uuid.UUID) error
}

// leadStore is the slice of the leads repository the orchestrator touches.
type leadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
	GetOrCreateByPhone(ctx context.Context, phone, artistID string) (*leads.Lead, error)
	Transition(ctx context.Context, id uuid.UUID, from, to leads.Status, reason string) (*leads.Lead, error)
	AdvanceStepIfAt(ctx context.Context, id uuid.UUID, expectedStep int) (bool, error)
	ForceStatus(ctx context.Context, id uuid.UUID, to leads.Status) error
	SetLastClientMessageAt(ctx context.Context, id uuid.UUID, t time.Time) error
	TouchHoldReply(ctx context.Context, id uuid.UUID, t time.Time) error
	IncrementParseFailure(ctx context.Context, id uuid.UUID, field string) (int, error)
	ResetParseFailure(ctx context.Context, id uuid.UUID, field string) error
	SaveAnswer(ctx context.Context, leadID uuid.UUID, questionKey, text string) (*leads.Answer, error)
	LatestAnswers(ctx context.Context, leadID uuid.UUID) (map[string]string, error)
	CountAnswers(ctx context.Context, leadID uuid.UUID, questionKey string) (int, error)
	SetEstimation(ctx context.Context, id uuid.UUID, est leads.Estimation) error
	SetSelectedSlot(ctx context.Context, id uuid.UUID, slot leads.Slot) error
	SetTourCityOffered(ctx context.Context, id uuid.UUID, city string) error
	AcceptTourCity(ctx context.Context, id uuid.UUID, city string) error
	MarkHandoverNotified(ctx context.Context, id uuid.UUID) error
}

type systemLogger interface {
	Record(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) error
}
