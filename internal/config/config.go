package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// WhatsApp Cloud API
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppAPIBaseURL    string
	WhatsAppDryRun        bool

	// Payment provider (Stripe-hosted checkout)
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	DepositRuleVersion  string

	// Admin surface
	AdminAPIKey    string
	AdminJWTSecret string

	// Default operator namespace
	ArtistID          string
	ArtistNotifyEmail string

	// Rollout controls
	PilotModeEnabled      bool
	PilotAllowlistNumbers []string
	PanicModeEnabled      bool

	// Subsystem kill switches
	FeatureSheetsEnabled        bool
	FeatureCalendarEnabled      bool
	FeatureRemindersEnabled     bool
	FeatureNotificationsEnabled bool
	OutboxEnabled               bool

	// Inbound rate limiting
	RateLimitEnabled       bool
	RateLimitRequests      int
	RateLimitWindowSeconds int

	ActionTokenExpiryDays int

	// Conversation queue
	UseMemoryQueue       bool
	WorkerCount          int
	ConversationQueueURL string

	// AWS (SQS queue, S3 attachments, SES notifications)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	AttachmentsBucket   string

	// Email provider selection: "ses" or "sendgrid"
	EmailProvider     string
	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Redis (rate limiter backend)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Spreadsheet mirror
	SheetsSpreadsheetID   string
	SheetsCredentialsJSON string

	// Tour schedule, JSON: [{"city":"London","starts_at":"2026-09-01T00:00:00Z"}]
	TourScheduleJSON string

	// Sweeper
	SweepInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           strings.ToLower(getEnv("APP_ENV", "dev")),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppDryRun:        getEnvAsBool("WHATSAPP_DRY_RUN", false),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", ""),
		DepositRuleVersion:  getEnv("DEPOSIT_RULE_VERSION", "v1"),

		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		ArtistID:          getEnv("ARTIST_ID", "default"),
		ArtistNotifyEmail: getEnv("ARTIST_NOTIFY_EMAIL", ""),

		PilotModeEnabled:      getEnvAsBool("PILOT_MODE_ENABLED", false),
		PilotAllowlistNumbers: getEnvAsList("PILOT_ALLOWLIST_NUMBERS"),
		PanicModeEnabled:      getEnvAsBool("PANIC_MODE_ENABLED", false),

		FeatureSheetsEnabled:        getEnvAsBool("FEATURE_SHEETS_ENABLED", false),
		FeatureCalendarEnabled:      getEnvAsBool("FEATURE_CALENDAR_ENABLED", false),
		FeatureRemindersEnabled:     getEnvAsBool("FEATURE_REMINDERS_ENABLED", true),
		FeatureNotificationsEnabled: getEnvAsBool("FEATURE_NOTIFICATIONS_ENABLED", true),
		OutboxEnabled:               getEnvAsBool("OUTBOX_ENABLED", true),

		RateLimitEnabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),

		ActionTokenExpiryDays: getEnvAsInt("ACTION_TOKEN_EXPIRY_DAYS", 7),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AttachmentsBucket:   getEnv("ATTACHMENTS_BUCKET", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Booking Broker"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Booking Broker"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsCredentialsJSON: getEnv("SHEETS_CREDENTIALS_JSON", ""),

		TourScheduleJSON: getEnv("TOUR_SCHEDULE_JSON", ""),

		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
	}
}

// IsProduction reports whether the app runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
