package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/observability/metrics"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// messagingWindow is the rolling interval after a client's inbound message
// during which free-form sends are permitted. Exactly 24h is closed.
const messagingWindow = 24 * time.Hour

// Verdict is the arbiter's decision for one outbound.
type Verdict string

const (
	VerdictOpen               Verdict = "open"
	VerdictClosedTemplateUsed Verdict = "closed_template_used"
	VerdictBlockedNoTemplate  Verdict = "blocked_no_template"
	VerdictOptedOut           Verdict = "opted_out"
)

// Outbound is what callers hand the arbiter: a free-form body plus an
// optional pre-approved template descriptor. The arbiter picks one.
type Outbound struct {
	Intent         string
	Body           string
	TemplateName   string
	TemplateParams map[string]string
}

type systemLogger interface {
	Record(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) error
}

// Arbiter decides between free-form, template, and no send at all. It is the
// single choke point for the 24h messaging window and the last line of
// defense for opt-out precedence.
type Arbiter struct {
	clock   clock.Clock
	sysLog  systemLogger
	metrics *metrics.BrokerMetrics
}

func NewArbiter(clk clock.Clock, sysLog systemLogger, m *metrics.BrokerMetrics) *Arbiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Arbiter{clock: clk, sysLog: sysLog, metrics: m}
}

// Decide returns the verdict for sending out to lead right now.
func (a *Arbiter) Decide(ctx context.Context, lead *leads.Lead, out Outbound) Verdict {
	if lead.Status == leads.StatusOptOut {
		return VerdictOptedOut
	}
	if lead.LastClientMessageAt == nil || a.clock.Now().Sub(*lead.LastClientMessageAt) < messagingWindow {
		return VerdictOpen
	}
	a.metrics.ObserveWindowClosed(out.Intent)
	if out.TemplateName != "" {
		a.metrics.ObserveTemplate("used")
		if a.sysLog != nil {
			_ = a.sysLog.Record(ctx, events.LevelInfo, "template.used", &lead.ID, map[string]string{
				"intent":   out.Intent,
				"template": out.TemplateName,
			})
		}
		return VerdictClosedTemplateUsed
	}
	a.metrics.ObserveTemplate("blocked")
	if a.sysLog != nil {
		_ = a.sysLog.Record(ctx, events.LevelWarn, "template_not_configured."+out.Intent, &lead.ID, nil)
	}
	return VerdictBlockedNoTemplate
}

type leadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
	SetLastBotMessageAt(ctx context.Context, id uuid.UUID, t time.Time) error
}

// Sender routes every outbound through the arbiter and, when enabled, the
// durable outbox. With the outbox disabled it attempts a direct send with
// best-effort semantics.
type Sender struct {
	arbiter *Arbiter
	outbox  *events.Outbox // nil disables the durable path
	client  Client
	store   leadReader
	clock   clock.Clock
	logger  *logging.Logger
}

func NewSender(arbiter *Arbiter, outbox *events.Outbox, client Client, store leadReader, clk clock.Clock, logger *logging.Logger) *Sender {
	if logger == nil {
		logger = logging.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sender{
		arbiter: arbiter,
		outbox:  outbox,
		client:  client,
		store:   store,
		clock:   clk,
		logger:  logger,
	}
}

// Send dispatches one outbound turn for a lead. The caller's lead snapshot
// may be stale, so the current status is re-read before anything leaves the
// building: opt-out wins regardless of the triggering subsystem.
func (s *Sender) Send(ctx context.Context, lead *leads.Lead, out Outbound) (Verdict, error) {
	if s.store != nil {
		current, err := s.store.GetByID(ctx, lead.ID)
		if err == nil {
			lead = current
		}
	}

	verdict := s.arbiter.Decide(ctx, lead, out)
	switch verdict {
	case VerdictOptedOut, VerdictBlockedNoTemplate:
		return verdict, nil
	}

	payload := events.MessagePayload{To: lead.Phone}
	if verdict == VerdictClosedTemplateUsed {
		payload.TemplateName = out.TemplateName
		payload.TemplateParams = out.TemplateParams
	} else {
		payload.Body = out.Body
	}

	if s.outbox != nil {
		msg, err := s.outbox.Enqueue(ctx, &lead.ID, "whatsapp", payload)
		if err != nil {
			return verdict, err
		}
		if _, err := s.client.Send(ctx, payload); err != nil {
			if ferr := s.outbox.MarkFailed(ctx, msg.ID, err.Error()); ferr != nil {
				s.logger.Error("outbox mark failed errored", "error", ferr, "message_id", msg.ID)
			}
			s.logger.Warn("outbound delivery failed, retry scheduled", "error", err, "lead_id", lead.ID)
		} else if err := s.outbox.MarkSent(ctx, msg.ID); err != nil {
			s.logger.Error("outbox mark sent errored", "error", err, "message_id", msg.ID)
		}
	} else {
		if _, err := s.client.Send(ctx, payload); err != nil {
			s.logger.Error("direct send failed", "error", err, "lead_id", lead.ID)
			return verdict, err
		}
	}

	if s.store != nil {
		if err := s.store.SetLastBotMessageAt(ctx, lead.ID, s.clock.Now()); err != nil {
			s.logger.Warn("failed to stamp last bot message", "error", err, "lead_id", lead.ID)
		}
	}
	return verdict, nil
}
