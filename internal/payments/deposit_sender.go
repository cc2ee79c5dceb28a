package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// checkoutValidity is how long a deposit link stays payable. Leads that let
// it lapse are moved to DEPOSIT_EXPIRED by the sweeper.
const checkoutValidity = 24 * time.Hour

// depositLeadStore is the slice of the leads repository the deposit path
// touches.
type depositLeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
	LockDeposit(ctx context.Context, id uuid.UUID, amountPence int64, ruleVersion string) (int64, error)
	SetCheckout(ctx context.Context, id uuid.UUID, sessionID string, expiresAt time.Time) error
}

// copySource renders outbound copy and resolves pre-approved channel
// templates per intent.
type copySource interface {
	Render(leadID uuid.UUID, key string, params map[string]string) (string, error)
	WhatsAppTemplate(intent string) string
}

// outboundSender is the arbiter-fronted delivery path.
type outboundSender interface {
	Send(ctx context.Context, lead *leads.Lead, out messaging.Outbound) (messaging.Verdict, error)
}

// DepositSender locks the deposit amount, creates the hosted checkout
// session and sends the payment link. The amount lock happens before the
// session is created so a retried send can never lower a previously quoted
// deposit.
type DepositSender struct {
	store       depositLeadStore
	checkout    SessionCreator
	sender      outboundSender
	copy        copySource
	ruleVersion string
	clock       clock.Clock
	logger      *logging.Logger
}

func NewDepositSender(store *leads.Store, checkout SessionCreator, sender outboundSender, copySrc copySource, ruleVersion string, clk clock.Clock, logger *logging.Logger) *DepositSender {
	return newDepositSender(store, checkout, sender, copySrc, ruleVersion, clk, logger)
}

func newDepositSender(store depositLeadStore, checkout SessionCreator, sender outboundSender, copySrc copySource, ruleVersion string, clk clock.Clock, logger *logging.Logger) *DepositSender {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DepositSender{
		store:       store,
		checkout:    checkout,
		sender:      sender,
		copy:        copySrc,
		ruleVersion: ruleVersion,
		clock:       clk,
		logger:      logger,
	}
}

// SendDepositLink creates (or re-sends) the deposit checkout for a lead.
func (d *DepositSender) SendDepositLink(ctx context.Context, leadID uuid.UUID) error {
	lead, err := d.store.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.EstimatedDepositAmountPence == nil {
		return fmt.Errorf("payments: lead %s has no estimated deposit", leadID)
	}

	locked, err := d.store.LockDeposit(ctx, leadID, *lead.EstimatedDepositAmountPence, d.ruleVersion)
	if err != nil {
		return err
	}

	session, err := d.checkout.CreateSession(ctx, SessionParams{
		LeadID:      leadID,
		AmountPence: locked,
		Description: "Tattoo booking deposit",
		RuleVersion: d.ruleVersion,
	})
	if err != nil {
		return err
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = d.clock.Now().Add(checkoutValidity)
	}
	if err := d.store.SetCheckout(ctx, leadID, session.ID, expiresAt); err != nil {
		return err
	}

	body, err := d.copy.Render(leadID, "deposit.link", map[string]string{
		"Amount": formatPence(locked),
		"URL":    session.URL,
	})
	if err != nil {
		return fmt.Errorf("payments: render deposit link: %w", err)
	}

	out := messaging.Outbound{
		Intent:       "deposit_link",
		Body:         body,
		TemplateName: d.copy.WhatsAppTemplate("deposit_link"),
	}
	if out.TemplateName != "" {
		out.TemplateParams = map[string]string{"1": body}
	}
	verdict, err := d.sender.Send(ctx, lead, out)
	if err != nil {
		return err
	}
	d.logger.Info("deposit link sent", "lead_id", leadID, "session_id", session.ID, "amount_pence", locked, "verdict", string(verdict))
	return nil
}

// formatPence renders a pence amount as display currency, dropping the
// decimals when the amount is whole pounds.
func formatPence(pence int64) string {
	if pence%100 == 0 {
		return fmt.Sprintf("£%d", pence/100)
	}
	return fmt.Sprintf("£%.2f", float64(pence)/100)
}
