// Package sweeper runs the periodic time-based transitions: qualifying
// reminders and abandonment, pending-approval staleness, deposit expiry,
// booking-pending follow-up and post-payment booking nudges. Every reminder
// goes through the idempotency store before anything is sent, so overlapping
// sweeps (or multiple sweeper processes) send each nudge once.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/conversation"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/pkg/logging"
)

const (
	qualifyingReminder1After = 12 * time.Hour
	qualifyingReminder2After = 36 * time.Hour
	abandonAfter             = 48 * time.Hour
	staleAfter               = 3 * 24 * time.Hour
	depositExpiryAfter       = 24 * time.Hour
	bookingFollowUpAfter     = 72 * time.Hour
	bookingReminder1After    = 24 * time.Hour
	bookingReminder2After    = 72 * time.Hour

	reminderProvider = "reminder"

	defaultInterval  = 5 * time.Minute
	defaultBatchSize = 100
)

type leadStore interface {
	ListQualifyingIdleSince(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error)
	ListPendingApprovalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error)
	ListAwaitingDepositExpired(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error)
	ListBookingPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error)
	ListBookingReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error)
	Transition(ctx context.Context, id uuid.UUID, from, to leads.Status, reason string) (*leads.Lead, error)
	StampQualifyingReminder(ctx context.Context, id uuid.UUID, ordinal int) error
	StampBookingReminder(ctx context.Context, id uuid.UUID, hours int) error
	MarkFollowUpNotified(ctx context.Context, id uuid.UUID) error
}

type idempotencyStore interface {
	CheckAndRecord(ctx context.Context, provider, externalID, eventType string, leadID *uuid.UUID) (bool, *events.ProcessedEvent, error)
}

type copySource interface {
	Render(leadID uuid.UUID, key string, params map[string]string) (string, error)
	WhatsAppTemplate(intent string) string
}

type outboundSender interface {
	Send(ctx context.Context, lead *leads.Lead, out messaging.Outbound) (messaging.Verdict, error)
}

type operatorNotifier interface {
	NotifyOperator(ctx context.Context, subject, body string) error
}

// Sweeper is the periodic driver.
type Sweeper struct {
	store     leadStore
	processed idempotencyStore
	copy      copySource
	sender    outboundSender
	notifier  operatorNotifier // nil disables operator alerts
	clock     clock.Clock
	logger    *logging.Logger

	interval  time.Duration
	batchSize int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the sweep cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize caps how many leads each predicate scan pulls per pass.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func New(store *leads.Store, processed *events.ProcessedStore, copySrc copySource, sender outboundSender, notifier operatorNotifier, clk clock.Clock, logger *logging.Logger, opts ...Option) *Sweeper {
	return newSweeper(store, processed, copySrc, sender, notifier, clk, logger, opts...)
}

func newSweeper(store leadStore, processed idempotencyStore, copySrc copySource, sender outboundSender, notifier operatorNotifier, clk clock.Clock, logger *logging.Logger, opts ...Option) *Sweeper {
	if store == nil || processed == nil {
		panic("sweeper: store and processed store required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{
		store:     store,
		processed: processed,
		copy:      copySrc,
		sender:    sender,
		notifier:  notifier,
		clock:     clk,
		logger:    logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass over every predicate. Scan failures are logged and the
// remaining scans still run.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepQualifying(ctx)
	s.sweepPendingApproval(ctx)
	s.sweepAwaitingDeposit(ctx)
	s.sweepBookingPending(ctx)
	s.sweepBookingReminders(ctx)
}

func (s *Sweeper) sweepQualifying(ctx context.Context) {
	now := s.clock.Now()
	idle, err := s.store.ListQualifyingIdleSince(ctx, now.Add(-qualifyingReminder1After), s.batchSize)
	if err != nil {
		s.logger.Error("qualifying scan failed", "error", err)
		return
	}
	for _, lead := range idle {
		since := now.Sub(*lead.LastClientMessageAt)
		switch {
		case since >= abandonAfter:
			if _, err := s.store.Transition(ctx, lead.ID, leads.StatusQualifying, leads.StatusAbandoned, "No reply for 48h"); err != nil {
				s.logger.Warn("abandon transition failed", "error", err, "lead_id", lead.ID)
			}
		case since >= qualifyingReminder2After && lead.ReminderQualifying2SentAt == nil:
			s.sendQualifyingReminder(ctx, lead, 2)
		case since >= qualifyingReminder1After && lead.ReminderQualifying1SentAt == nil:
			s.sendQualifyingReminder(ctx, lead, 1)
		}
	}
}

func (s *Sweeper) sendQualifyingReminder(ctx context.Context, lead *leads.Lead, ordinal int) {
	hours := 12
	if ordinal == 2 {
		hours = 36
	}
	key := fmt.Sprintf("reminder_qualifying_%s_%d_%dh", lead.ID, ordinal, hours)
	dup, _, err := s.processed.CheckAndRecord(ctx, reminderProvider, key, "reminder_qualifying", &lead.ID)
	if err != nil {
		s.logger.Error("reminder idempotency check failed", "error", err, "key", key)
		return
	}
	if dup {
		return
	}

	params := map[string]string{}
	if ordinal == 1 {
		if copyKey, ok := conversation.QuestionCopyKeyAt(lead.CurrentStep); ok {
			if question, err := s.copy.Render(lead.ID, copyKey, nil); err == nil {
				params["Question"] = question
			}
		}
	}
	body, err := s.copy.Render(lead.ID, fmt.Sprintf("reminder.qualifying.%d", ordinal), params)
	if err != nil {
		s.logger.Error("reminder render failed", "error", err, "lead_id", lead.ID)
		return
	}
	s.deliver(ctx, lead, "reminder_qualifying", body)
	if err := s.store.StampQualifyingReminder(ctx, lead.ID, ordinal); err != nil {
		s.logger.Warn("reminder stamp failed", "error", err, "lead_id", lead.ID)
	}
}

func (s *Sweeper) sweepPendingApproval(ctx context.Context) {
	cutoff := s.clock.Now().Add(-staleAfter)
	stale, err := s.store.ListPendingApprovalBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("pending approval scan failed", "error", err)
		return
	}
	for _, lead := range stale {
		if _, err := s.store.Transition(ctx, lead.ID, leads.StatusPendingApproval, leads.StatusStale, "No operator action for 3 days"); err != nil {
			s.logger.Warn("stale transition failed", "error", err, "lead_id", lead.ID)
		}
	}
}

func (s *Sweeper) sweepAwaitingDeposit(ctx context.Context) {
	cutoff := s.clock.Now().Add(-depositExpiryAfter)
	expired, err := s.store.ListAwaitingDepositExpired(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("awaiting deposit scan failed", "error", err)
		return
	}
	for _, lead := range expired {
		if _, err := s.store.Transition(ctx, lead.ID, leads.StatusAwaitingDeposit, leads.StatusDepositExpired, "Checkout link lapsed unpaid"); err != nil {
			s.logger.Warn("deposit expiry transition failed", "error", err, "lead_id", lead.ID)
		}
	}
}

func (s *Sweeper) sweepBookingPending(ctx context.Context) {
	cutoff := s.clock.Now().Add(-bookingFollowUpAfter)
	overdue, err := s.store.ListBookingPendingBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("booking pending scan failed", "error", err)
		return
	}
	for _, lead := range overdue {
		updated, err := s.store.Transition(ctx, lead.ID, leads.StatusBookingPending, leads.StatusNeedsFollowUp, "No slot chosen for 72h after payment")
		if err != nil {
			s.logger.Warn("booking follow-up transition failed", "error", err, "lead_id", lead.ID)
			continue
		}
		if s.notifier != nil && updated.NeedsFollowUpNotifiedAt == nil {
			body := fmt.Sprintf("Lead %s (%s) paid but hasn't picked a slot in 72h.", updated.ID, updated.Phone)
			if err := s.notifier.NotifyOperator(ctx, "Paid lead needs follow-up", body); err != nil {
				s.logger.Warn("follow-up notify failed", "error", err, "lead_id", updated.ID)
			} else if err := s.store.MarkFollowUpNotified(ctx, updated.ID); err != nil {
				s.logger.Warn("follow-up notify stamp failed", "error", err, "lead_id", updated.ID)
			}
		}
	}
}

func (s *Sweeper) sweepBookingReminders(ctx context.Context) {
	now := s.clock.Now()
	candidates, err := s.store.ListBookingReminderCandidates(ctx, now.Add(-bookingReminder1After), s.batchSize)
	if err != nil {
		s.logger.Error("booking reminder scan failed", "error", err)
		return
	}
	for _, lead := range candidates {
		since := now.Sub(*lead.DepositPaidAt)
		switch {
		case since >= bookingReminder2After && lead.ReminderBooking72SentAt == nil:
			s.sendBookingReminder(ctx, lead, 72)
		case since >= bookingReminder1After && lead.ReminderBooking24SentAt == nil:
			s.sendBookingReminder(ctx, lead, 24)
		}
	}
}

func (s *Sweeper) sendBookingReminder(ctx context.Context, lead *leads.Lead, hours int) {
	key := fmt.Sprintf("reminder_booking_%s_%dh", lead.ID, hours)
	dup, _, err := s.processed.CheckAndRecord(ctx, reminderProvider, key, "reminder_booking", &lead.ID)
	if err != nil {
		s.logger.Error("reminder idempotency check failed", "error", err, "key", key)
		return
	}
	if dup {
		return
	}
	body, err := s.copy.Render(lead.ID, fmt.Sprintf("reminder.booking.%d", hours), nil)
	if err != nil {
		s.logger.Error("reminder render failed", "error", err, "lead_id", lead.ID)
		return
	}
	s.deliver(ctx, lead, "booking_reminder", body)
	if err := s.store.StampBookingReminder(ctx, lead.ID, hours); err != nil {
		s.logger.Warn("reminder stamp failed", "error", err, "lead_id", lead.ID)
	}
}

func (s *Sweeper) deliver(ctx context.Context, lead *leads.Lead, intent, body string) {
	out := messaging.Outbound{
		Intent:       intent,
		Body:         body,
		TemplateName: s.copy.WhatsAppTemplate(intent),
	}
	if out.TemplateName != "" {
		out.TemplateParams = map[string]string{"1": body}
	}
	if _, err := s.sender.Send(ctx, lead, out); err != nil {
		s.logger.Warn("reminder send failed", "error", err, "lead_id", lead.ID, "intent", intent)
	}
}
