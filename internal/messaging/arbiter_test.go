package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/observability/metrics"
)

type recordingSysLog struct {
	types []string
}

func (r *recordingSysLog) Record(_ context.Context, _ string, eventType string, _ *uuid.UUID, _ any) error {
	r.types = append(r.types, eventType)
	return nil
}

func testLead(status leads.Status, lastInbound *time.Time) *leads.Lead {
	return &leads.Lead{
		ID:                  uuid.New(),
		Phone:               "447700900001",
		Status:              status,
		LastClientMessageAt: lastInbound,
	}
}

func TestArbiterOpenWindow(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFrozen(now)
	a := NewArbiter(clk, &recordingSysLog{}, metrics.NewForTest())

	// No inbound yet: open.
	if v := a.Decide(context.Background(), testLead(leads.StatusQualifying, nil), Outbound{}); v != VerdictOpen {
		t.Fatalf("nil last inbound: got %s", v)
	}
	// 23:59:59 ago: open.
	last := now.Add(-24*time.Hour + time.Second)
	if v := a.Decide(context.Background(), testLead(leads.StatusQualifying, &last), Outbound{}); v != VerdictOpen {
		t.Fatalf("just inside window: got %s", v)
	}
}

func TestArbiterExactly24HoursIsClosed(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFrozen(now)
	sysLog := &recordingSysLog{}
	a := NewArbiter(clk, sysLog, metrics.NewForTest())

	last := now.Add(-24 * time.Hour)
	out := Outbound{Intent: "qualifying_question", TemplateName: "continue_qualifying"}
	if v := a.Decide(context.Background(), testLead(leads.StatusQualifying, &last), out); v != VerdictClosedTemplateUsed {
		t.Fatalf("exactly 24h must be closed: got %s", v)
	}
	if len(sysLog.types) != 1 || sysLog.types[0] != "template.used" {
		t.Fatalf("expected template.used system event, got %v", sysLog.types)
	}
}

func TestArbiterClosedWithoutTemplateBlocks(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	sysLog := &recordingSysLog{}
	a := NewArbiter(clock.NewFrozen(now), sysLog, metrics.NewForTest())

	last := now.Add(-48 * time.Hour)
	out := Outbound{Intent: "slot_offer"}
	if v := a.Decide(context.Background(), testLead(leads.StatusBookingPending, &last), out); v != VerdictBlockedNoTemplate {
		t.Fatalf("expected blocked, got %s", v)
	}
	if len(sysLog.types) != 1 || sysLog.types[0] != "template_not_configured.slot_offer" {
		t.Fatalf("expected template_not_configured event, got %v", sysLog.types)
	}
}

func TestArbiterOptOutWinsOverEverything(t *testing.T) {
	a := NewArbiter(clock.NewFrozen(time.Now()), &recordingSysLog{}, metrics.NewForTest())
	out := Outbound{Intent: "reminder", TemplateName: "booking_reminder"}
	if v := a.Decide(context.Background(), testLead(leads.StatusOptOut, nil), out); v != VerdictOptedOut {
		t.Fatalf("expected opted_out, got %s", v)
	}
}

type fakeClient struct {
	sent []events.MessagePayload
	err  error
}

func (f *fakeClient) Send(_ context.Context, payload events.MessagePayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, payload)
	return "wamid.test", nil
}

type fakeLeadReader struct {
	lead    *leads.Lead
	stamped int
}

func (f *fakeLeadReader) GetByID(_ context.Context, _ uuid.UUID) (*leads.Lead, error) {
	if f.lead == nil {
		return nil, errors.New("not found")
	}
	return f.lead, nil
}

func (f *fakeLeadReader) SetLastBotMessageAt(_ context.Context, _ uuid.UUID, _ time.Time) error {
	f.stamped++
	return nil
}

func TestSenderOptOutShortCircuitsEvenWithStaleSnapshot(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFrozen(now)
	client := &fakeClient{}
	// Snapshot says QUALIFYING, store says OPTOUT. The store wins.
	fresh := testLead(leads.StatusOptOut, nil)
	store := &fakeLeadReader{lead: fresh}
	sender := NewSender(NewArbiter(clk, &recordingSysLog{}, metrics.NewForTest()), nil, client, store, clk, nil)

	stale := testLead(leads.StatusQualifying, nil)
	stale.ID = fresh.ID
	verdict, err := sender.Send(context.Background(), stale, Outbound{Body: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if verdict != VerdictOptedOut {
		t.Fatalf("expected opted_out, got %s", verdict)
	}
	if len(client.sent) != 0 {
		t.Fatal("nothing may be delivered to an opted-out lead")
	}
}

func TestSenderDirectSendWhenOutboxDisabled(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFrozen(now)
	client := &fakeClient{}
	lead := testLead(leads.StatusQualifying, nil)
	store := &fakeLeadReader{lead: lead}
	sender := NewSender(NewArbiter(clk, &recordingSysLog{}, metrics.NewForTest()), nil, client, store, clk, nil)

	verdict, err := sender.Send(context.Background(), lead, Outbound{Body: "next question"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if verdict != VerdictOpen {
		t.Fatalf("expected open, got %s", verdict)
	}
	if len(client.sent) != 1 || client.sent[0].Body != "next question" {
		t.Fatalf("unexpected deliveries: %+v", client.sent)
	}
	if store.stamped != 1 {
		t.Fatal("last bot message not stamped")
	}
}
