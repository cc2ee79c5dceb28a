package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inkworks/booking-broker/internal/attachments"
	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/conversation"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/http/middleware"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/internal/observability/metrics"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type leadResolver interface {
	GetOrCreateByPhone(ctx context.Context, phone, artistID string) (*leads.Lead, error)
}

type processedTracker interface {
	CheckAndRecord(ctx context.Context, provider, externalID, eventType string, leadID *uuid.UUID) (bool, *events.ProcessedEvent, error)
}

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, job conversation.InboundJob) error
}

type attachmentRecorder interface {
	Record(ctx context.Context, leadID uuid.UUID, messageID, mediaType string, payload []byte) (*attachments.Attachment, error)
}

type outboundSender interface {
	Send(ctx context.Context, lead *leads.Lead, out messaging.Outbound) (messaging.Verdict, error)
}

type operatorNotifier interface {
	NotifyOperator(ctx context.Context, subject, body string) error
}

type systemLogger interface {
	Record(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) error
}

type copySource interface {
	Render(leadID uuid.UUID, key string, params map[string]string) (string, error)
	WhatsAppTemplate(intent string) string
}

// mediaMessageTypes are the channel message types that carry a media id.
var mediaMessageTypes = map[string]bool{
	"image": true, "video": true, "audio": true, "document": true,
}

// WhatsAppWebhookHandler terminates the channel webhook: GET is the
// subscription handshake, POST classifies one inbound event, dedupes it and
// hands the message to the conversation queue. Classified events always ack
// 200 so the provider does not retry; only signature and payload failures
// get a 4xx.
type WhatsAppWebhookHandler struct {
	verifyToken string
	appSecret   string
	production  bool
	artistID    string

	store       leadResolver
	processed   processedTracker
	publisher   inboundPublisher
	attachments attachmentRecorder // nil disables media rows
	sender      outboundSender
	notifier    operatorNotifier
	copy        copySource
	sysLog      systemLogger
	metrics     *metrics.BrokerMetrics
	clock       clock.Clock
	logger      *logging.Logger

	pilotMode      bool
	pilotAllowlist map[string]bool
	panicMode      bool
}

type WhatsAppWebhookConfig struct {
	VerifyToken string
	AppSecret   string
	Production  bool
	ArtistID    string

	Store       *leads.Store
	Processed   *events.ProcessedStore
	Publisher   *conversation.Publisher
	Attachments *attachments.Store
	Sender      outboundSender
	Notifier    operatorNotifier
	Copy        copySource
	SysLog      *events.SystemLog
	Metrics     *metrics.BrokerMetrics
	Clock       clock.Clock
	Logger      *logging.Logger

	PilotModeEnabled      bool
	PilotAllowlistNumbers []string
	PanicModeEnabled      bool
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	h := &WhatsAppWebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		production:  cfg.Production,
		artistID:    cfg.ArtistID,
		store:       cfg.Store,
		processed:   cfg.Processed,
		publisher:   cfg.Publisher,
		sender:      cfg.Sender,
		notifier:    cfg.Notifier,
		copy:        cfg.Copy,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		pilotMode:   cfg.PilotModeEnabled,
		panicMode:   cfg.PanicModeEnabled,
	}
	if cfg.Attachments != nil {
		h.attachments = cfg.Attachments
	}
	if cfg.SysLog != nil {
		h.sysLog = cfg.SysLog
	}
	if h.clock == nil {
		h.clock = clock.Real{}
	}
	if h.logger == nil {
		h.logger = logging.Default()
	}
	if len(cfg.PilotAllowlistNumbers) > 0 {
		h.pilotAllowlist = make(map[string]bool, len(cfg.PilotAllowlistNumbers))
		for _, n := range cfg.PilotAllowlistNumbers {
			h.pilotAllowlist[n] = true
		}
	}
	return h
}

// newWhatsAppWebhookHandler is the interface-typed constructor used by tests.
func newWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig, store leadResolver, processed processedTracker, publisher inboundPublisher, recorder attachmentRecorder, sysLog systemLogger) *WhatsAppWebhookHandler {
	h := NewWhatsAppWebhookHandler(cfg)
	h.store = store
	h.processed = processed
	h.publisher = publisher
	h.attachments = recorder
	h.sysLog = sysLog
	return h
}

// HandleVerify answers the channel's GET subscription handshake.
func (h *WhatsAppWebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken && h.verifyToken != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// waWebhookPayload is the subset of the Cloud API envelope the broker reads.
type waWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *waMedia `json:"image"`
	Video    *waMedia `json:"video"`
	Audio    *waMedia `json:"audio"`
	Document *waMedia `json:"document"`
}

type waMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

func (m waMessage) media() *waMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	}
	return nil
}

// HandleInbound processes one POSTed webhook event.
var whatsappTracer = otel.Tracer("broker.internal.http.handlers.whatsapp")

func (h *WhatsAppWebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds())
	}()

	ctx, span := whatsappTracer.Start(r.Context(), "whatsapp.webhook")
	defer span.End()
	if cid := middleware.CorrelationID(ctx); cid != "" {
		span.SetAttributes(attribute.String("correlation_id", cid))
	}
	r = r.WithContext(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"received": false, "error": "invalid body"})
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		h.recordSystemEvent(r.Context(), events.LevelWarn, "webhook_failure", nil, map[string]string{
			"provider": "whatsapp", "reason": "invalid_signature",
		})
		h.respond(w, http.StatusForbidden, map[string]any{"received": false, "error": "invalid signature"})
		return
	}

	var payload waWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"received": false, "error": "invalid payload"})
		return
	}

	msg, ok := firstMessage(payload)
	if !ok {
		// Status callbacks and other non-message changes.
		h.respond(w, http.StatusOK, map[string]any{"received": true, "type": "non_message"})
		return
	}
	if msg.Type != "text" && msg.Type != "location" && !mediaMessageTypes[msg.Type] {
		h.respond(w, http.StatusOK, map[string]any{"received": true, "type": "non_message"})
		return
	}

	lead, err := h.store.GetOrCreateByPhone(ctx, msg.From, h.artistID)
	if err != nil {
		h.logger.Error("lead resolve failed", "error", err, "phone", msg.From)
		h.respond(w, http.StatusOK, map[string]any{"received": false, "error": "lead resolution failed"})
		return
	}

	dup, _, err := h.processed.CheckAndRecord(ctx, "whatsapp", msg.ID, "message", &lead.ID)
	if err != nil {
		h.logger.Error("idempotency check failed", "error", err, "message_id", msg.ID)
		h.respond(w, http.StatusOK, map[string]any{"received": false, "error": "idempotency check failed"})
		return
	}
	if dup {
		h.metrics.ObserveDuplicate("whatsapp")
		h.respond(w, http.StatusOK, map[string]any{"received": true, "type": "duplicate", "lead_id": lead.ID})
		return
	}

	if h.panicMode {
		h.handlePanic(ctx, lead, msg)
		h.respond(w, http.StatusOK, map[string]any{"received": true, "type": "panic_mode", "lead_id": lead.ID})
		return
	}

	if h.pilotMode && !h.pilotAllowlist[msg.From] {
		h.sendCopy(ctx, lead, "pilot_deferred", "pilot.deferred", nil)
		h.respond(w, http.StatusOK, map[string]any{"received": true, "type": "pilot_deferred", "lead_id": lead.ID})
		return
	}

	text := ""
	if msg.Text != nil {
		text = msg.Text.Body
	}
	media := msg.media()
	mediaID := ""
	if media != nil {
		mediaID = media.ID
		if text == "" {
			text = media.Caption
		}
		if h.attachments != nil {
			if _, err := h.attachments.Record(ctx, lead.ID, msg.ID, msg.Type, nil); err != nil {
				h.logger.Warn("attachment record failed", "error", err, "lead_id", lead.ID)
			}
		}
	}

	job := conversation.InboundJob{
		ID:        msg.ID,
		LeadID:    lead.ID,
		Text:      text,
		HasMedia:  media != nil,
		MediaID:   mediaID,
		Timestamp: parseWATimestamp(msg.Timestamp),
	}
	if err := h.publisher.EnqueueInbound(ctx, job); err != nil {
		h.logger.Error("enqueue failed", "error", err, "lead_id", lead.ID)
		h.respond(w, http.StatusOK, map[string]any{"received": false, "error": "enqueue failed", "lead_id": lead.ID})
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"received": true, "type": "queued", "lead_id": lead.ID})
}

// handlePanic records and alerts but sends only the single safe holding
// reply; nothing reaches the conversation queue.
func (h *WhatsAppWebhookHandler) handlePanic(ctx context.Context, lead *leads.Lead, msg waMessage) {
	h.recordSystemEvent(ctx, events.LevelWarn, "panic_mode_inbound", &lead.ID, map[string]string{
		"message_id": msg.ID,
	})
	if h.notifier != nil {
		if err := h.notifier.NotifyOperator(ctx, "Panic mode: inbound message held",
			"Lead "+lead.ID.String()+" messaged while automation is paused."); err != nil {
			h.logger.Warn("panic notify failed", "error", err)
		}
	}
	h.sendCopy(ctx, lead, "panic_reply", "panic.reply", nil)
}

func (h *WhatsAppWebhookHandler) sendCopy(ctx context.Context, lead *leads.Lead, intent, key string, params map[string]string) {
	if h.sender == nil || h.copy == nil {
		return
	}
	body, err := h.copy.Render(lead.ID, key, params)
	if err != nil {
		h.logger.Warn("render failed", "error", err, "key", key)
		return
	}
	out := messaging.Outbound{Intent: intent, Body: body, TemplateName: h.copy.WhatsAppTemplate(intent)}
	if out.TemplateName != "" {
		out.TemplateParams = map[string]string{"1": body}
	}
	if _, err := h.sender.Send(ctx, lead, out); err != nil {
		h.logger.Warn("send failed", "error", err, "intent", intent)
	}
}

// verifySignature checks X-Hub-Signature-256. An empty secret skips the
// check in dev but never in production.
func (h *WhatsAppWebhookHandler) verifySignature(body []byte, header string) bool {
	if h.appSecret == "" {
		return !h.production
	}
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func (h *WhatsAppWebhookHandler) recordSystemEvent(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) {
	if h.sysLog == nil {
		return
	}
	if err := h.sysLog.Record(ctx, level, eventType, leadID, payload); err != nil {
		h.logger.Warn("system event record failed", "error", err, "event_type", eventType)
	}
}

func firstMessage(p waWebhookPayload) (waMessage, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return waMessage{}, false
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return waMessage{}, false
	}
	return msgs[0], true
}

// parseWATimestamp converts the channel's unix-seconds string; zero means
// unknown and skips out-of-order suppression downstream.
func parseWATimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func (h *WhatsAppWebhookHandler) respond(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
