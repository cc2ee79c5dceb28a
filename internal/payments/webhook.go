package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/internal/observability/metrics"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// leadUpdater is the slice of the leads repository the correlator needs.
type leadUpdater interface {
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
	UpdateStatusIfMatches(ctx context.Context, id uuid.UUID, expected, next leads.Status, set leads.StatusSet) (bool, *leads.Lead, error)
	Transition(ctx context.Context, id uuid.UUID, from, to leads.Status, reason string) (*leads.Lead, error)
}

// processedTracker is the idempotency surface for payment events. Payment
// events are recorded only after every side-effect has committed, so a crash
// mid-processing replays rather than loses the payment.
type processedTracker interface {
	CheckOnly(ctx context.Context, provider, externalID string) (bool, *events.ProcessedEvent, error)
	CheckAndRecord(ctx context.Context, provider, externalID, eventType string, leadID *uuid.UUID) (bool, *events.ProcessedEvent, error)
}

// MirrorSink receives paid leads for the external spreadsheet mirror.
type MirrorSink interface {
	RecordDepositPaid(ctx context.Context, lead *leads.Lead, correlationID string) error
}

// Notifier alerts the human operator.
type Notifier interface {
	NotifyOperator(ctx context.Context, subject, body string) error
}

type systemLogger interface {
	Record(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) error
}

// StripeWebhookHandler correlates checkout.session.completed events onto
// leads: verified events drive the AWAITING_DEPOSIT -> DEPOSIT_PAID ->
// BOOKING_PENDING advance exactly once per provider event id.
type StripeWebhookHandler struct {
	webhookSecret string
	store         leadUpdater
	processed     processedTracker
	sender        outboundSender
	copy          copySource
	mirror        MirrorSink // nil disables mirroring
	notifier      Notifier   // nil disables operator alerts
	sysLog        systemLogger
	metrics       *metrics.BrokerMetrics
	clock         clock.Clock
	logger        *logging.Logger
}

// NewStripeWebhookHandler creates the production handler.
func NewStripeWebhookHandler(
	webhookSecret string,
	store *leads.Store,
	processed *events.ProcessedStore,
	sender outboundSender,
	copySrc copySource,
	mirror MirrorSink,
	notifier Notifier,
	sysLog *events.SystemLog,
	m *metrics.BrokerMetrics,
	clk clock.Clock,
	logger *logging.Logger,
) *StripeWebhookHandler {
	return newStripeWebhookHandler(webhookSecret, store, processed, sender, copySrc, mirror, notifier, sysLog, m, clk, logger)
}

func newStripeWebhookHandler(
	webhookSecret string,
	store leadUpdater,
	processed processedTracker,
	sender outboundSender,
	copySrc copySource,
	mirror MirrorSink,
	notifier Notifier,
	sysLog systemLogger,
	m *metrics.BrokerMetrics,
	clk clock.Clock,
	logger *logging.Logger,
) *StripeWebhookHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		store:         store,
		processed:     processed,
		sender:        sender,
		copy:          copySrc,
		mirror:        mirror,
		notifier:      notifier,
		sysLog:        sysLog,
		metrics:       m,
		clock:         clk,
		logger:        logger,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	started := h.clock.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.clock.Now()) {
		h.recordEvent(ctx, events.LevelWarn, "webhook_failure", nil, map[string]string{
			"provider": "stripe",
			"reason":   "bad_signature",
		})
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	ctx, span := stripeTracer.Start(ctx, "stripe.webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.event_id", evt.ID),
		attribute.String("stripe.event_type", evt.Type),
	)
	if cid := r.Header.Get("X-Correlation-ID"); cid != "" {
		span.SetAttributes(attribute.String("correlation_id", cid))
	}

	// Only checkout.session.completed carries a deposit; everything else is
	// acknowledged without mutation.
	if evt.Type != "checkout.session.completed" {
		w.WriteHeader(http.StatusOK)
		return
	}
	defer func() {
		h.metrics.ObserveWebhookLatency("stripe", h.clock.Now().Sub(started).Seconds())
	}()

	session := evt.Data.Object
	leadRef := session.Metadata["lead_id"]
	if leadRef == "" {
		leadRef = session.ClientReferenceID
	}
	leadID, err := uuid.Parse(leadRef)
	if err != nil {
		http.Error(w, "invalid lead reference", http.StatusBadRequest)
		return
	}

	lead, err := h.store.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
			return
		}
		h.logger.Error("lead fetch failed", "error", err, "lead_id", leadID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// A session id that disagrees with the one we issued means the payment
	// belongs to a different checkout. Never apply it.
	if lead.CheckoutSessionID != nil && *lead.CheckoutSessionID != session.ID {
		h.recordEvent(ctx, events.LevelWarn, "session_id_mismatch", &lead.ID, map[string]string{
			"expected": *lead.CheckoutSessionID,
			"received": session.ID,
		})
		http.Error(w, "session mismatch", http.StatusBadRequest)
		return
	}

	// Read-only duplicate check. The recording write happens last.
	if dup, _, err := h.processed.CheckOnly(ctx, "stripe", evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if dup {
		h.metrics.ObserveDuplicate("stripe")
		writeJSON(w, http.StatusOK, map[string]string{"type": "duplicate"})
		return
	}

	intentID := session.PaymentIntent
	if intentID == "" {
		intentID = session.ID
	}
	now := h.clock.Now()
	set := leads.StatusSet{PaymentIntentID: &intentID, DepositPaidAt: &now}

	won, current, err := h.store.UpdateStatusIfMatches(ctx, lead.ID, leads.StatusAwaitingDeposit, leads.StatusDepositPaid, set)
	if err != nil {
		h.logger.Error("deposit paid update failed", "error", err, "lead_id", lead.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !won {
		switch current.Status {
		case leads.StatusDepositPaid:
			h.metrics.ObserveDuplicate("stripe")
			writeJSON(w, http.StatusOK, map[string]string{"type": "duplicate"})
			return
		case leads.StatusNeedsArtistReply:
			// Client paid mid-handover; the payment still counts.
			won, current, err = h.store.UpdateStatusIfMatches(ctx, lead.ID, leads.StatusNeedsArtistReply, leads.StatusDepositPaid, set)
			if err != nil {
				h.logger.Error("deposit paid update failed", "error", err, "lead_id", lead.ID)
				http.Error(w, "server error", http.StatusInternalServerError)
				return
			}
		}
		if !won {
			h.metrics.ObserveAtomicUpdateFailed("deposit_paid")
			h.recordEvent(ctx, events.LevelError, "webhook_failure", &lead.ID, map[string]string{
				"reason": "status_mismatch",
				"status": string(current.Status),
			})
			if h.notifier != nil {
				_ = h.notifier.NotifyOperator(ctx, "Payment arrived in unexpected status",
					fmt.Sprintf("Lead %s paid while in %s; manual review needed. Session %s.", lead.ID, current.Status, session.ID))
			}
			http.Error(w, "lead not awaiting deposit", http.StatusBadRequest)
			return
		}
	}

	paid := current
	if booked, err := h.store.Transition(ctx, lead.ID, leads.StatusDepositPaid, leads.StatusBookingPending, "Deposit received"); err != nil {
		// The payment is applied; the stuck DEPOSIT_PAID row surfaces via the
		// sweeper and operator review rather than a webhook retry.
		h.logger.Error("booking pending transition failed", "error", err, "lead_id", lead.ID)
	} else {
		paid = booked
	}

	h.runSideEffects(ctx, paid, evt.ID, session.ID)

	// Recorded last: a crash before this line replays the event, and the
	// conditional update above absorbs the replay.
	if _, _, err := h.processed.CheckAndRecord(ctx, "stripe", evt.ID, evt.Type, &lead.ID); err != nil {
		h.logger.Error("failed to record processed payment event", "error", err, "event_id", evt.ID)
	}

	writeJSON(w, http.StatusOK, map[string]string{"type": "processed"})
}

func (h *StripeWebhookHandler) runSideEffects(ctx context.Context, lead *leads.Lead, eventID, sessionID string) {
	if h.mirror != nil {
		go func(snapshot *leads.Lead) {
			mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.mirror.RecordDepositPaid(mctx, snapshot, eventID); err != nil {
				h.logger.Warn("deposit mirror failed", "error", err, "lead_id", snapshot.ID)
			}
		}(lead)
	}

	body, err := h.copy.Render(lead.ID, "payment.confirmation", map[string]string{
		"Next": "The artist will send over available dates.",
	})
	if err != nil {
		h.logger.Error("failed to render payment confirmation", "error", err, "lead_id", lead.ID)
	} else {
		out := messaging.Outbound{
			Intent:       "deposit_received",
			Body:         body,
			TemplateName: h.copy.WhatsAppTemplate("deposit_received"),
		}
		if out.TemplateName != "" {
			out.TemplateParams = map[string]string{"1": body}
		}
		if _, err := h.sender.Send(ctx, lead, out); err != nil {
			h.logger.Warn("payment confirmation send failed", "error", err, "lead_id", lead.ID)
		}
	}

	if h.notifier != nil {
		subject := "Deposit paid"
		msg := fmt.Sprintf("Lead %s (%s) paid their deposit. Session %s.", lead.ID, lead.Phone, sessionID)
		if err := h.notifier.NotifyOperator(ctx, subject, msg); err != nil {
			h.logger.Warn("operator notify failed", "error", err, "lead_id", lead.ID)
		}
	}
}

func (h *StripeWebhookHandler) recordEvent(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) {
	if h.sysLog == nil {
		return
	}
	if err := h.sysLog.Record(ctx, level, eventType, leadID, payload); err != nil {
		h.logger.Warn("system event record failed", "error", err, "event_type", eventType)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeSessionObject `json:"object"`
	} `json:"data"`
}

// stripeSessionObject is the checkout.session object from the webhook.
type stripeSessionObject struct {
	ID                string            `json:"id"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	Status            string            `json:"status"`
}
