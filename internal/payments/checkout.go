// Package payments creates hosted checkout sessions for deposits and
// correlates the provider's webhook events back onto leads.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inkworks/booking-broker/pkg/logging"
)

var stripeTracer = otel.Tracer("broker.internal.payments.stripe")

// SessionParams describes the checkout session to create for a lead's
// deposit. RuleVersion travels in the session metadata for auditability.
type SessionParams struct {
	LeadID      uuid.UUID
	AmountPence int64
	Description string
	RuleVersion string
}

// Session is the hosted checkout session handed back to the caller.
type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SessionCreator is the checkout port. The Stripe adapter below is the
// production implementation; tests substitute fakes.
type SessionCreator interface {
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)
}

// StripeCheckoutService creates Stripe Checkout Sessions for deposit
// collection against the hosted payment page.
type StripeCheckoutService struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeCheckoutService creates a new Stripe checkout service.
func NewStripeCheckoutService(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	dryRun := strings.EqualFold(os.Getenv("STRIPE_DRY_RUN"), "true") || os.Getenv("STRIPE_DRY_RUN") == "1"
	return &StripeCheckoutService{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		dryRun:     dryRun,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeCheckoutService) WithBaseURL(baseURL string) *StripeCheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun enables dry-run mode (returns fake URLs without calling Stripe).
func (s *StripeCheckoutService) WithDryRun(enabled bool) *StripeCheckoutService {
	s.dryRun = enabled
	return s
}

// CreateSession implements SessionCreator for Stripe.
func (s *StripeCheckoutService) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("broker.lead_id", params.LeadID.String()),
		attribute.Int("broker.amount_pence", int(params.AmountPence)),
	)

	if s.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping checkout session creation",
			"lead_id", params.LeadID, "amount_pence", params.AmountPence)
		return &Session{
			ID:  fakeID,
			URL: fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
		}, nil
	}

	description := params.Description
	if strings.TrimSpace(description) == "" {
		description = "Booking deposit"
	}

	leadID := params.LeadID.String()

	// Build form-encoded body for the Stripe API
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", leadID)
	form.Set("line_items[0][price_data][currency]", "gbp")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.AmountPence))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")

	if s.successURL != "" {
		form.Set("success_url", s.successURL)
	}
	if s.cancelURL != "" {
		form.Set("cancel_url", s.cancelURL)
	}

	// Metadata for webhook correlation
	form.Set("metadata[lead_id]", leadID)
	form.Set("metadata[deposit_rule_version]", params.RuleVersion)

	// Also set metadata on the payment intent so it's reachable from payment objects
	form.Set("payment_intent_data[metadata][lead_id]", leadID)
	form.Set("payment_intent_data[metadata][deposit_rule_version]", params.RuleVersion)

	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}

	session := &Session{ID: parsed.ID, URL: parsed.URL}
	if parsed.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(parsed.ExpiresAt, 0).UTC()
	}
	return session, nil
}

// stripeCheckoutSession is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSession struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}
