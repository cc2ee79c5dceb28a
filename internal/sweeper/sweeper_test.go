package sweeper

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/internal/messaging/templates"
	"github.com/inkworks/booking-broker/pkg/logging"
)

var sweepFrozenAt = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeLeadStore struct {
	leads       []*leads.Lead
	transitions []string
}

func (f *fakeLeadStore) byStatus(status leads.Status) []*leads.Lead {
	var out []*leads.Lead
	for _, l := range f.leads {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

func (f *fakeLeadStore) ListQualifyingIdleSince(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error) {
	var out []*leads.Lead
	for _, l := range f.byStatus(leads.StatusQualifying) {
		if l.LastClientMessageAt != nil && !l.LastClientMessageAt.After(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) ListPendingApprovalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error) {
	var out []*leads.Lead
	for _, l := range f.byStatus(leads.StatusPendingApproval) {
		if l.PendingApprovalAt != nil && !l.PendingApprovalAt.After(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) ListAwaitingDepositExpired(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error) {
	var out []*leads.Lead
	for _, l := range f.byStatus(leads.StatusAwaitingDeposit) {
		if l.DepositSentAt != nil && !l.DepositSentAt.After(cutoff) && l.DepositPaidAt == nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) ListBookingPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error) {
	var out []*leads.Lead
	for _, l := range f.byStatus(leads.StatusBookingPending) {
		if l.BookingPendingAt != nil && !l.BookingPendingAt.After(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) ListBookingReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*leads.Lead, error) {
	var out []*leads.Lead
	for _, l := range f.leads {
		if l.Status != leads.StatusDepositPaid && l.Status != leads.StatusBookingLinkSent {
			continue
		}
		if l.DepositPaidAt != nil && !l.DepositPaidAt.After(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) Transition(ctx context.Context, id uuid.UUID, from, to leads.Status, reason string) (*leads.Lead, error) {
	if !leads.CanTransition(from, to) {
		return nil, &leads.InvalidTransitionError{From: from, To: to}
	}
	for _, l := range f.leads {
		if l.ID == id {
			l.Status = to
			f.transitions = append(f.transitions, string(from)+"->"+string(to))
			return l, nil
		}
	}
	return nil, leads.ErrLeadNotFound
}

func (f *fakeLeadStore) StampQualifyingReminder(ctx context.Context, id uuid.UUID, ordinal int) error {
	now := sweepFrozenAt
	for _, l := range f.leads {
		if l.ID != id {
			continue
		}
		if ordinal == 2 {
			if l.ReminderQualifying2SentAt == nil {
				l.ReminderQualifying2SentAt = &now
			}
		} else if l.ReminderQualifying1SentAt == nil {
			l.ReminderQualifying1SentAt = &now
		}
	}
	return nil
}

func (f *fakeLeadStore) StampBookingReminder(ctx context.Context, id uuid.UUID, hours int) error {
	now := sweepFrozenAt
	for _, l := range f.leads {
		if l.ID != id {
			continue
		}
		if hours == 72 {
			if l.ReminderBooking72SentAt == nil {
				l.ReminderBooking72SentAt = &now
			}
		} else if l.ReminderBooking24SentAt == nil {
			l.ReminderBooking24SentAt = &now
		}
	}
	return nil
}

func (f *fakeLeadStore) MarkFollowUpNotified(ctx context.Context, id uuid.UUID) error {
	now := sweepFrozenAt
	for _, l := range f.leads {
		if l.ID == id && l.NeedsFollowUpNotifiedAt == nil {
			l.NeedsFollowUpNotifiedAt = &now
		}
	}
	return nil
}

type fakeReminderTracker struct {
	mu   sync.Mutex
	seen map[string]bool
	keys []string
}

func newFakeReminderTracker() *fakeReminderTracker {
	return &fakeReminderTracker{seen: make(map[string]bool)}
}

func (f *fakeReminderTracker) CheckAndRecord(ctx context.Context, provider, externalID, eventType string, leadID *uuid.UUID) (bool, *events.ProcessedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := provider + ":" + externalID
	if f.seen[key] {
		return true, &events.ProcessedEvent{Provider: provider, ExternalID: externalID}, nil
	}
	f.seen[key] = true
	f.keys = append(f.keys, key)
	return false, nil, nil
}

type fakeReminderSender struct {
	sent []messaging.Outbound
}

func (f *fakeReminderSender) Send(ctx context.Context, lead *leads.Lead, out messaging.Outbound) (messaging.Verdict, error) {
	f.sent = append(f.sent, out)
	return messaging.VerdictOpen, nil
}

type fakeSweepNotifier struct {
	subjects []string
}

func (f *fakeSweepNotifier) NotifyOperator(ctx context.Context, subject, body string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

type sweepHarness struct {
	store    *fakeLeadStore
	tracker  *fakeReminderTracker
	sender   *fakeReminderSender
	notifier *fakeSweepNotifier
	sweeper  *Sweeper
}

func newSweepHarness(t *testing.T, seed ...*leads.Lead) *sweepHarness {
	t.Helper()
	deck, err := templates.NewDeck(templates.DefaultWhatsAppTemplates())
	if err != nil {
		t.Fatalf("deck: %v", err)
	}
	h := &sweepHarness{
		store:    &fakeLeadStore{leads: seed},
		tracker:  newFakeReminderTracker(),
		sender:   &fakeReminderSender{},
		notifier: &fakeSweepNotifier{},
	}
	h.sweeper = newSweeper(h.store, h.tracker, deck, h.sender, h.notifier,
		clock.NewFrozen(sweepFrozenAt), logging.New("error"))
	return h
}

func qualifyingLead(idle time.Duration, step int) *leads.Lead {
	last := sweepFrozenAt.Add(-idle)
	return &leads.Lead{
		ID:                  uuid.New(),
		Phone:               "+447700900001",
		Status:              leads.StatusQualifying,
		CurrentStep:         step,
		LastClientMessageAt: &last,
	}
}

func TestSweepSendsFirstQualifyingReminder(t *testing.T) {
	lead := qualifyingLead(13*time.Hour, 2)
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if len(h.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(h.sender.sent))
	}
	out := h.sender.sent[0]
	if out.Intent != "reminder_qualifying" {
		t.Fatalf("intent = %s", out.Intent)
	}
	if !strings.Contains(out.Body, "Roughly how big") {
		t.Fatalf("reminder must re-ask the current question, got %q", out.Body)
	}
	if out.TemplateName != "qualifying_reminder" {
		t.Fatalf("template = %s", out.TemplateName)
	}
	wantKey := "reminder:reminder_qualifying_" + lead.ID.String() + "_1_12h"
	if len(h.tracker.keys) != 1 || h.tracker.keys[0] != wantKey {
		t.Fatalf("idempotency keys = %v, want %s", h.tracker.keys, wantKey)
	}
	if lead.ReminderQualifying1SentAt == nil {
		t.Fatal("first reminder must be stamped")
	}

	// Second pass is a no-op: the stamp filters the lead out, and even a
	// lost stamp is caught by the idempotency key.
	h.sweeper.Sweep(context.Background())
	if len(h.sender.sent) != 1 {
		t.Fatalf("resent after stamp, sent = %d", len(h.sender.sent))
	}
}

func TestSweepSendsSecondQualifyingReminder(t *testing.T) {
	lead := qualifyingLead(37*time.Hour, 4)
	stamped := sweepFrozenAt.Add(-25 * time.Hour)
	lead.ReminderQualifying1SentAt = &stamped
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if len(h.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(h.sender.sent))
	}
	if !strings.Contains(h.sender.sent[0].Body, "Still keen") {
		t.Fatalf("body = %q", h.sender.sent[0].Body)
	}
	wantKey := "reminder:reminder_qualifying_" + lead.ID.String() + "_2_36h"
	if h.tracker.keys[0] != wantKey {
		t.Fatalf("key = %s, want %s", h.tracker.keys[0], wantKey)
	}
	if lead.ReminderQualifying2SentAt == nil {
		t.Fatal("second reminder must be stamped")
	}
}

func TestSweepAbandonsBeforeReminding(t *testing.T) {
	lead := qualifyingLead(50*time.Hour, 1)
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if lead.Status != leads.StatusAbandoned {
		t.Fatalf("status = %s, want ABANDONED", lead.Status)
	}
	if len(h.sender.sent) != 0 {
		t.Fatalf("abandoned lead must not get a reminder, sent = %d", len(h.sender.sent))
	}
}

func TestSweepMarksPendingApprovalStale(t *testing.T) {
	pending := sweepFrozenAt.Add(-4 * 24 * time.Hour)
	lead := &leads.Lead{
		ID:                uuid.New(),
		Status:            leads.StatusPendingApproval,
		PendingApprovalAt: &pending,
	}
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if lead.Status != leads.StatusStale {
		t.Fatalf("status = %s, want STALE", lead.Status)
	}
}

func TestSweepExpiresUnpaidDeposit(t *testing.T) {
	sent := sweepFrozenAt.Add(-25 * time.Hour)
	lead := &leads.Lead{
		ID:            uuid.New(),
		Status:        leads.StatusAwaitingDeposit,
		DepositSentAt: &sent,
	}
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if lead.Status != leads.StatusDepositExpired {
		t.Fatalf("status = %s, want DEPOSIT_EXPIRED", lead.Status)
	}
}

func TestSweepFlagsStuckBookingOnce(t *testing.T) {
	entered := sweepFrozenAt.Add(-80 * time.Hour)
	lead := &leads.Lead{
		ID:               uuid.New(),
		Phone:            "+447700900002",
		Status:           leads.StatusBookingPending,
		BookingPendingAt: &entered,
	}
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if lead.Status != leads.StatusNeedsFollowUp {
		t.Fatalf("status = %s, want NEEDS_FOLLOW_UP", lead.Status)
	}
	if len(h.notifier.subjects) != 1 {
		t.Fatalf("operator alerts = %d, want 1", len(h.notifier.subjects))
	}
	if lead.NeedsFollowUpNotifiedAt == nil {
		t.Fatal("notify must be stamped")
	}

	// The lead is out of BOOKING_PENDING now, so nothing fires again.
	h.sweeper.Sweep(context.Background())
	if len(h.notifier.subjects) != 1 {
		t.Fatalf("alerted twice: %v", h.notifier.subjects)
	}
}

func TestSweepBookingReminderAnchorsOnPayment(t *testing.T) {
	paid := sweepFrozenAt.Add(-26 * time.Hour)
	lead := &leads.Lead{
		ID:            uuid.New(),
		Status:        leads.StatusDepositPaid,
		DepositPaidAt: &paid,
	}
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if len(h.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(h.sender.sent))
	}
	if h.sender.sent[0].Intent != "booking_reminder" {
		t.Fatalf("intent = %s", h.sender.sent[0].Intent)
	}
	wantKey := "reminder:reminder_booking_" + lead.ID.String() + "_24h"
	if h.tracker.keys[0] != wantKey {
		t.Fatalf("key = %s", h.tracker.keys[0])
	}
	if lead.ReminderBooking24SentAt == nil {
		t.Fatal("24h reminder must be stamped")
	}
}

func TestSweepBookingReminderEscalatesAt72h(t *testing.T) {
	paid := sweepFrozenAt.Add(-73 * time.Hour)
	first := sweepFrozenAt.Add(-48 * time.Hour)
	lead := &leads.Lead{
		ID:                      uuid.New(),
		Status:                  leads.StatusBookingLinkSent,
		DepositPaidAt:           &paid,
		ReminderBooking24SentAt: &first,
	}
	h := newSweepHarness(t, lead)

	h.sweeper.Sweep(context.Background())

	if len(h.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(h.sender.sent))
	}
	if !strings.Contains(h.sender.sent[0].Body, "deposit is in") {
		t.Fatalf("body = %q", h.sender.sent[0].Body)
	}
	wantKey := "reminder:reminder_booking_" + lead.ID.String() + "_72h"
	if h.tracker.keys[0] != wantKey {
		t.Fatalf("key = %s", h.tracker.keys[0])
	}
}

func TestSweepSkipsFreshLeads(t *testing.T) {
	h := newSweepHarness(t, qualifyingLead(2*time.Hour, 0))

	h.sweeper.Sweep(context.Background())

	if len(h.sender.sent) != 0 || len(h.store.transitions) != 0 {
		t.Fatalf("fresh lead touched: sent=%d transitions=%v", len(h.sender.sent), h.store.transitions)
	}
}
