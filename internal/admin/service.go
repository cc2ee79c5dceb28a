// Package admin implements the operator actions: approving and rejecting
// qualified leads, slot management, pausing the bot, and the single-use
// action tokens that let the artist do all of that from an email link.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/actiontokens"
	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// Token action types.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// StatusConflictError reports an operator action attempted against a lead in
// the wrong state.
type StatusConflictError struct {
	Action   string
	Current  leads.Status
	Expected leads.Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("Cannot %s in status '%s'. Lead must be in '%s'.", e.Action, e.Current, e.Expected)
}

type adminLeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
	UpdateStatusIfMatches(ctx context.Context, id uuid.UUID, expected, next leads.Status, set leads.StatusSet) (bool, *leads.Lead, error)
	Transition(ctx context.Context, id uuid.UUID, from, to leads.Status, reason string) (*leads.Lead, error)
	SetSuggestedSlots(ctx context.Context, id uuid.UUID, slots []leads.Slot) error
}

type depositLinkSender interface {
	SendDepositLink(ctx context.Context, leadID uuid.UUID) error
}

type tokenStore interface {
	Create(ctx context.Context, leadID uuid.UUID, actionType string, requiredStatus leads.Status, ttl time.Duration) (*actiontokens.ActionToken, error)
	Get(ctx context.Context, token string) (*actiontokens.ActionToken, error)
	Consume(ctx context.Context, token string) (bool, error)
}

type copySource interface {
	Render(leadID uuid.UUID, key string, params map[string]string) (string, error)
	WhatsAppTemplate(intent string) string
}

type outboundSender interface {
	Send(ctx context.Context, lead *leads.Lead, out messaging.Outbound) (messaging.Verdict, error)
}

// SlotProvider proposes appointment slots for a lead when the operator does
// not supply them explicitly. Availability computation stays outside the
// broker; implementations wrap whatever source the artist actually uses.
type SlotProvider interface {
	SuggestSlots(ctx context.Context, lead *leads.Lead) ([]leads.Slot, error)
}

// Service executes operator actions against the lead state machine.
type Service struct {
	store    adminLeadStore
	deposits depositLinkSender
	tokens   tokenStore
	copy     copySource
	sender   outboundSender
	slots    SlotProvider
	baseURL  string
	tokenTTL time.Duration
	clock    clock.Clock
	logger   *logging.Logger
}

type ServiceConfig struct {
	Store    *leads.Store
	Deposits depositLinkSender
	Tokens   *actiontokens.Store
	Copy     copySource
	Sender   outboundSender
	Slots    SlotProvider
	BaseURL  string
	TokenTTL time.Duration
	Clock    clock.Clock
	Logger   *logging.Logger
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:    cfg.Store,
		deposits: cfg.Deposits,
		copy:     cfg.Copy,
		sender:   cfg.Sender,
		slots:    cfg.Slots,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tokenTTL: cfg.TokenTTL,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if cfg.Tokens != nil {
		s.tokens = cfg.Tokens
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

func newService(cfg ServiceConfig, store adminLeadStore, deposits depositLinkSender, tokens tokenStore) *Service {
	s := NewService(cfg)
	s.store = store
	s.deposits = deposits
	s.tokens = tokens
	return s
}

// Approve moves a reviewed lead to AWAITING_DEPOSIT and sends the checkout
// link. Approving an already-approved lead resends the link instead of
// failing, so a retried email click stays harmless.
func (s *Service) Approve(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error) {
	won, lead, err := s.store.UpdateStatusIfMatches(ctx, leadID, leads.StatusPendingApproval, leads.StatusAwaitingDeposit, leads.StatusSet{})
	if err != nil {
		return nil, fmt.Errorf("admin: approve: %w", err)
	}
	if !won && lead.Status != leads.StatusAwaitingDeposit {
		return nil, &StatusConflictError{Action: "approve", Current: lead.Status, Expected: leads.StatusPendingApproval}
	}
	if s.deposits != nil {
		if err := s.deposits.SendDepositLink(ctx, leadID); err != nil {
			return lead, fmt.Errorf("admin: approve: deposit link: %w", err)
		}
	}
	return lead, nil
}

// Reject closes a lead under review and tells the client.
func (s *Service) Reject(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error) {
	won, lead, err := s.store.UpdateStatusIfMatches(ctx, leadID, leads.StatusPendingApproval, leads.StatusRejected, leads.StatusSet{})
	if err != nil {
		return nil, fmt.Errorf("admin: reject: %w", err)
	}
	if !won {
		return nil, &StatusConflictError{Action: "reject", Current: lead.Status, Expected: leads.StatusPendingApproval}
	}
	s.sendCopy(ctx, lead, "rejected", "ack.rejected", nil)
	return lead, nil
}

// SuggestSlots stores the operator's offered appointment windows and sends
// the numbered list to the client. An empty list falls through to the slot
// provider when one is configured.
func (s *Service) SuggestSlots(ctx context.Context, leadID uuid.UUID, slots []leads.Slot) (*leads.Lead, error) {
	lead, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status != leads.StatusBookingPending {
		return nil, &StatusConflictError{Action: "suggest slots", Current: lead.Status, Expected: leads.StatusBookingPending}
	}
	if len(slots) == 0 && s.slots != nil {
		slots, err = s.slots.SuggestSlots(ctx, lead)
		if err != nil {
			return nil, fmt.Errorf("admin: suggest slots: provider: %w", err)
		}
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("admin: suggest slots: at least one slot required")
	}
	if err := s.store.SetSuggestedSlots(ctx, leadID, slots); err != nil {
		return nil, fmt.Errorf("admin: suggest slots: %w", err)
	}
	s.sendCopy(ctx, lead, "booking_slots", "booking.slots", map[string]string{
		"Slots": formatSlots(slots),
	})
	return lead, nil
}

// MarkBooked finalizes a paid lead whose slot is settled.
func (s *Service) MarkBooked(ctx context.Context, leadID uuid.UUID, calendarEventID string) (*leads.Lead, error) {
	set := leads.StatusSet{}
	if calendarEventID != "" {
		set.CalendarEventID = &calendarEventID
	}
	won, lead, err := s.store.UpdateStatusIfMatches(ctx, leadID, leads.StatusBookingPending, leads.StatusBooked, set)
	if err != nil {
		return nil, fmt.Errorf("admin: mark booked: %w", err)
	}
	if !won {
		return nil, &StatusConflictError{Action: "mark booked", Current: lead.Status, Expected: leads.StatusBookingPending}
	}
	s.sendCopy(ctx, lead, "booked", "ack.booked", nil)
	return lead, nil
}

// Pause hands the conversation to the artist from whatever state it is in,
// when the transition table allows it.
func (s *Service) Pause(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error) {
	lead, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !leads.CanTransition(lead.Status, leads.StatusNeedsArtistReply) {
		return nil, &StatusConflictError{Action: "pause", Current: lead.Status, Expected: leads.StatusQualifying}
	}
	updated, err := s.store.Transition(ctx, leadID, lead.Status, leads.StatusNeedsArtistReply, "Operator paused the bot")
	if err != nil {
		return nil, fmt.Errorf("admin: pause: %w", err)
	}
	return updated, nil
}

// Resume returns a paused conversation to the interview at its current step.
func (s *Service) Resume(ctx context.Context, leadID uuid.UUID) (*leads.Lead, error) {
	won, lead, err := s.store.UpdateStatusIfMatches(ctx, leadID, leads.StatusNeedsArtistReply, leads.StatusQualifying, leads.StatusSet{})
	if err != nil {
		return nil, fmt.Errorf("admin: resume: %w", err)
	}
	if !won {
		return nil, &StatusConflictError{Action: "resume", Current: lead.Status, Expected: leads.StatusNeedsArtistReply}
	}
	return lead, nil
}

// ApprovalLinks carries the one-click action URLs embedded in the review
// email sent to the artist.
type ApprovalLinks struct {
	ApproveURL string
	RejectURL  string
}

// IssueApprovalLinks mints an approve and a reject token for a lead under
// review and returns their public URLs.
func (s *Service) IssueApprovalLinks(ctx context.Context, leadID uuid.UUID) (*ApprovalLinks, error) {
	if s.tokens == nil {
		return nil, fmt.Errorf("admin: action tokens not configured")
	}
	approve, err := s.tokens.Create(ctx, leadID, ActionApprove, leads.StatusPendingApproval, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("admin: issue approve token: %w", err)
	}
	reject, err := s.tokens.Create(ctx, leadID, ActionReject, leads.StatusPendingApproval, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("admin: issue reject token: %w", err)
	}
	return &ApprovalLinks{
		ApproveURL: s.baseURL + "/a/" + approve.Token,
		RejectURL:  s.baseURL + "/a/" + reject.Token,
	}, nil
}

// TokenPreview describes what a token will do, for the GET confirmation view.
type TokenPreview struct {
	Action string
	Lead   *leads.Lead
}

// PreviewToken validates a token without consuming it.
func (s *Service) PreviewToken(ctx context.Context, token string) (*TokenPreview, error) {
	if s.tokens == nil {
		return nil, fmt.Errorf("admin: action tokens not configured")
	}
	at, err := s.tokens.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	lead, err := s.store.GetByID(ctx, at.LeadID)
	if err != nil {
		return nil, err
	}
	if err := at.Validate(s.clock.Now(), lead.Status); err != nil {
		return nil, err
	}
	return &TokenPreview{Action: at.ActionType, Lead: lead}, nil
}

// ExecuteToken consumes a token and runs its action. Consumption happens
// before the action so a double-click cannot execute twice; a consumed token
// whose action then fails needs a fresh link, which IssueApprovalLinks hands
// out freely.
func (s *Service) ExecuteToken(ctx context.Context, token string) (*leads.Lead, string, error) {
	if s.tokens == nil {
		return nil, "", fmt.Errorf("admin: action tokens not configured")
	}
	at, err := s.tokens.Get(ctx, token)
	if err != nil {
		return nil, "", err
	}
	lead, err := s.store.GetByID(ctx, at.LeadID)
	if err != nil {
		return nil, "", err
	}
	if err := at.Validate(s.clock.Now(), lead.Status); err != nil {
		return nil, "", err
	}
	used, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if !used {
		return nil, "", actiontokens.ErrTokenUsed
	}

	switch at.ActionType {
	case ActionApprove:
		lead, err = s.Approve(ctx, at.LeadID)
	case ActionReject:
		lead, err = s.Reject(ctx, at.LeadID)
	default:
		return nil, "", fmt.Errorf("admin: unknown token action %q", at.ActionType)
	}
	if err != nil {
		return nil, at.ActionType, err
	}
	return lead, at.ActionType, nil
}

func (s *Service) sendCopy(ctx context.Context, lead *leads.Lead, intent, key string, params map[string]string) {
	if s.sender == nil || s.copy == nil {
		return
	}
	body, err := s.copy.Render(lead.ID, key, params)
	if err != nil {
		s.logger.Warn("render failed", "error", err, "key", key)
		return
	}
	out := messaging.Outbound{Intent: intent, Body: body, TemplateName: s.copy.WhatsAppTemplate(intent)}
	if out.TemplateName != "" {
		out.TemplateParams = map[string]string{"1": body}
	}
	if _, err := s.sender.Send(ctx, lead, out); err != nil {
		s.logger.Warn("send failed", "error", err, "intent", intent, "lead_id", lead.ID)
	}
}

// formatSlots renders the numbered slot list the client replies to.
func formatSlots(slots []leads.Slot) string {
	var b strings.Builder
	for i, slot := range slots {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s - %s", i+1,
			slot.Start.Format("Mon 2 Jan 15:04"),
			slot.End.Format("15:04"))
	}
	return b.String()
}
