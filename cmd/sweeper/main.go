package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/inkworks/booking-broker/cmd/mainconfig"
	"github.com/inkworks/booking-broker/internal/clock"
	appconfig "github.com/inkworks/booking-broker/internal/config"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/internal/messaging/templates"
	"github.com/inkworks/booking-broker/internal/notify"
	"github.com/inkworks/booking-broker/internal/sweeper"
	"github.com/inkworks/booking-broker/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if !cfg.FeatureRemindersEnabled {
		logger.Info("reminders disabled, sweeper exiting")
		return
	}

	logger.Info("starting booking-broker sweeper",
		"env", cfg.Env,
		"interval", cfg.SweepInterval.String(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	clk := clock.Real{}

	leadStore := leads.NewStore(pool, clk)
	processed := events.NewProcessedStore(pool)
	sysLog := events.NewSystemLog(pool, clk)

	deck, err := templates.NewDeck(templates.DefaultWhatsAppTemplates())
	if err != nil {
		logger.Error("failed to parse copy deck", "error", err)
		os.Exit(1)
	}

	waClient := messaging.NewWhatsAppClient(messaging.WhatsAppConfig{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		DryRun:        cfg.WhatsAppDryRun,
	}, logger)

	// Reminders go through the outbox when enabled; the API dispatcher
	// drains the shared table.
	var outbox *events.Outbox
	if cfg.OutboxEnabled {
		outbox = events.NewOutbox(pool, clk)
	}
	// No scrape endpoint here, so no registry to publish.
	arbiter := messaging.NewArbiter(clk, sysLog, nil)
	sender := messaging.NewSender(arbiter, outbox, waClient, leadStore, clk, logger)

	notifier := buildNotifier(cfg, awsCfg, logger)

	sw := sweeper.New(leadStore, processed, deck, sender, notifier, clk, logger,
		sweeper.WithInterval(cfg.SweepInterval),
	)
	sw.Run(ctx)

	logger.Info("sweeper stopped")
}

func buildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	var email notify.EmailSender = notify.NewStubEmailSender(logger)
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			email = s
		}
	default:
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			email = s
		}
	}
	return notify.NewService(email, cfg.ArtistNotifyEmail, cfg.ArtistID, cfg.FeatureNotificationsEnabled, logger)
}
