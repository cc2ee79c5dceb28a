package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/inkworks/booking-broker/cmd/mainconfig"
	"github.com/inkworks/booking-broker/internal/actiontokens"
	"github.com/inkworks/booking-broker/internal/admin"
	"github.com/inkworks/booking-broker/internal/api/router"
	"github.com/inkworks/booking-broker/internal/attachments"
	"github.com/inkworks/booking-broker/internal/clock"
	appconfig "github.com/inkworks/booking-broker/internal/config"
	"github.com/inkworks/booking-broker/internal/conversation"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/http/handlers"
	httpmiddleware "github.com/inkworks/booking-broker/internal/http/middleware"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/internal/messaging/templates"
	"github.com/inkworks/booking-broker/internal/mirror"
	"github.com/inkworks/booking-broker/internal/notify"
	"github.com/inkworks/booking-broker/internal/observability/metrics"
	"github.com/inkworks/booking-broker/internal/payments"
	"github.com/inkworks/booking-broker/internal/sweeper"
	"github.com/inkworks/booking-broker/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-broker API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

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

	// Repositories.
	leadStore := leads.NewStore(pool, clk)
	processed := events.NewProcessedStore(pool)
	sysLog := events.NewSystemLog(pool, clk)
	tokenStore := actiontokens.NewStore(pool, clk)

	registry := prometheus.NewRegistry()
	brokerMetrics := metrics.NewBrokerMetrics(registry)

	deck, err := templates.NewDeck(templates.DefaultWhatsAppTemplates())
	if err != nil {
		logger.Error("failed to parse copy deck", "error", err)
		os.Exit(1)
	}

	// Outbound messaging: WhatsApp client behind the window arbiter, with a
	// durable outbox when enabled.
	waClient := messaging.NewWhatsAppClient(messaging.WhatsAppConfig{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		DryRun:        cfg.WhatsAppDryRun,
	}, logger)

	var outbox *events.Outbox
	if cfg.OutboxEnabled {
		outbox = events.NewOutbox(pool, clk)
	}
	arbiter := messaging.NewArbiter(clk, sysLog, brokerMetrics)
	sender := messaging.NewSender(arbiter, outbox, waClient, leadStore, clk, logger)

	notifier := buildNotifier(cfg, awsCfg, logger)

	tour, err := conversation.ParseTourSchedule(cfg.TourScheduleJSON)
	if err != nil {
		logger.Error("failed to parse tour schedule", "error", err)
		os.Exit(1)
	}

	convoService := conversation.NewService(leadStore, deck, sender, notifier, sysLog, tour, clk, logger)

	// Conversation queue: SQS in deployed environments, in-process for local
	// development.
	var worker *conversation.Worker
	var publisher *conversation.Publisher
	if cfg.UseMemoryQueue {
		queue := conversation.NewMemoryQueue(256)
		worker = conversation.NewWorker(convoService, queue, logger, conversation.WithWorkerCount(cfg.WorkerCount))
		publisher = conversation.NewPublisher(queue, logger)
	} else {
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
		worker = conversation.NewWorker(convoService, queue, logger, conversation.WithWorkerCount(cfg.WorkerCount))
		publisher = conversation.NewPublisher(queue, logger)
	}

	attachStore := attachments.NewStore(pool, s3.NewFromConfig(awsCfg), cfg.AttachmentsBucket, clk, logger)

	// Payments: hosted checkout plus the webhook correlator.
	checkout := payments.NewStripeCheckoutService(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, logger)
	deposits := payments.NewDepositSender(leadStore, checkout, sender, deck, cfg.DepositRuleVersion, clk, logger)

	var sink payments.MirrorSink
	if cfg.FeatureSheetsEnabled && cfg.SheetsCredentialsJSON != "" {
		sheetsMirror, err := mirror.NewSheetsMirror(ctx, []byte(cfg.SheetsCredentialsJSON), cfg.SheetsSpreadsheetID, clk, logger)
		if err != nil {
			logger.Error("sheets mirror disabled", "error", err)
		} else {
			sink = sheetsMirror
		}
	}

	stripeWebhook := payments.NewStripeWebhookHandler(
		cfg.StripeWebhookSecret,
		leadStore,
		processed,
		sender,
		deck,
		sink,
		notifier,
		sysLog,
		brokerMetrics,
		clk,
		logger,
	)

	adminService := admin.NewService(admin.ServiceConfig{
		Store:    leadStore,
		Deposits: deposits,
		Tokens:   tokenStore,
		Copy:     deck,
		Sender:   sender,
		BaseURL:  cfg.PublicBaseURL,
		TokenTTL: time.Duration(cfg.ActionTokenExpiryDays) * 24 * time.Hour,
		Clock:    clk,
		Logger:   logger,
	})

	waWebhook := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		Production:  cfg.IsProduction(),
		ArtistID:    cfg.ArtistID,

		Store:       leadStore,
		Processed:   processed,
		Publisher:   publisher,
		Attachments: attachStore,
		Sender:      sender,
		Notifier:    notifier,
		Copy:        deck,
		SysLog:      sysLog,
		Metrics:     brokerMetrics,
		Clock:       clk,
		Logger:      logger,

		PilotModeEnabled:      cfg.PilotModeEnabled,
		PilotAllowlistNumbers: cfg.PilotAllowlistNumbers,
		PanicModeEnabled:      cfg.PanicModeEnabled,
	})

	routerCfg := &router.Config{
		Logger:          logger,
		WhatsAppWebhook: waWebhook,
		StripeWebhook:   stripeWebhook,
		AdminLeads:      handlers.NewAdminLeadHandler(adminService, logger),
		ActionTokens:    handlers.NewActionTokenHandler(adminService, logger),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminJWTSecret:  cfg.AdminJWTSecret,
		AdminAPIKey:     cfg.AdminAPIKey,
		RateLimiter:     buildRateLimiter(cfg, clk, logger),
	}
	r := router.New(routerCfg)

	// Background loops share one cancellable context.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	worker.Start(runCtx)

	if outbox != nil {
		dispatcher := events.NewDispatcher(outbox, messaging.NewClientDeliverer(waClient), logger)
		go dispatcher.Start(runCtx)
	}

	// Reminder sends are idempotency-keyed, so overlap with a standalone
	// cmd/sweeper process is harmless.
	if cfg.FeatureRemindersEnabled {
		sw := sweeper.New(leadStore, processed, deck, sender, notifier, clk, logger,
			sweeper.WithInterval(cfg.SweepInterval),
		)
		go sw.Run(runCtx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	cancelRun()
	worker.Wait()

	logger.Info("server stopped")
}

// buildNotifier selects the operator email transport. Missing credentials
// degrade to a log-only stub so alerts never break the broker.
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

func buildRateLimiter(cfg *appconfig.Config, clk clock.Clock, logger *logging.Logger) httpmiddleware.ClientLimiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		return httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimitRequests, window, clk, logger)
	}
	return httpmiddleware.NewLocalLimiter(float64(cfg.RateLimitRequests)/window.Seconds(), cfg.RateLimitRequests)
}
