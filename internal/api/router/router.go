// Package router assembles the HTTP surface: public webhooks, the operator
// action links, and the authenticated admin API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inkworks/booking-broker/internal/http/handlers"
	httpmiddleware "github.com/inkworks/booking-broker/internal/http/middleware"
	"github.com/inkworks/booking-broker/internal/payments"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	WhatsAppWebhook *handlers.WhatsAppWebhookHandler
	StripeWebhook   *payments.StripeWebhookHandler
	AdminLeads      *handlers.AdminLeadHandler
	ActionTokens    *handlers.ActionTokenHandler
	MetricsHandler  http.Handler

	AdminJWTSecret string
	AdminAPIKey    string

	// RateLimiter guards the public webhook surface; nil disables limiting.
	RateLimiter httpmiddleware.ClientLimiter
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.Correlation)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public surface: webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		if cfg.RateLimiter != nil {
			public.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.WhatsAppWebhook != nil {
			public.Get("/webhooks/whatsapp", cfg.WhatsAppWebhook.HandleVerify)
			public.Post("/webhooks/whatsapp", cfg.WhatsAppWebhook.HandleInbound)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Operator action links carry their own single-use token auth.
	if cfg.ActionTokens != nil {
		r.Get("/a/{token}", cfg.ActionTokens.Preview)
		r.Post("/a/{token}", cfg.ActionTokens.Execute)
	}

	// Authenticated admin API.
	if cfg.AdminLeads != nil {
		r.Route("/admin", func(adminRoutes chi.Router) {
			adminRoutes.Use(httpmiddleware.AdminAuth(cfg.AdminJWTSecret, cfg.AdminAPIKey))
			adminRoutes.Route("/leads/{leadID}", func(lead chi.Router) {
				lead.Post("/approve", cfg.AdminLeads.Approve)
				lead.Post("/reject", cfg.AdminLeads.Reject)
				lead.Post("/slots", cfg.AdminLeads.SuggestSlots)
				lead.Post("/book", cfg.AdminLeads.MarkBooked)
				lead.Post("/pause", cfg.AdminLeads.Pause)
				lead.Post("/resume", cfg.AdminLeads.Resume)
				lead.Post("/tokens", cfg.AdminLeads.IssueTokens)
			})
		})
	}

	return r
}
