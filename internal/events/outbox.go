package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// Outbox message statuses.
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// MessagePayload is the outbound envelope stored in the outbox. Either Body
// (free-form) or TemplateName + ordered TemplateParams is set.
type MessagePayload struct {
	To             string            `json:"to"`
	Body           string            `json:"body,omitempty"`
	TemplateName   string            `json:"template_name,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty"`
}

// OutboxMessage is one durable outbound message row.
type OutboxMessage struct {
	ID          uuid.UUID
	LeadID      *uuid.UUID
	Channel     string
	Payload     MessagePayload
	Status      string
	Attempts    int
	LastError   *string
	NextRetryAt *time.Time
	CreatedAt   time.Time
}

type outboxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Outbox persists pending outbound messages for reliable delivery with
// exponential backoff.
type Outbox struct {
	db    outboxQuerier
	clock clock.Clock
}

func NewOutbox(pool *pgxpool.Pool, clk clock.Clock) *Outbox {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newOutboxWithDB(pool, clk)
}

func newOutboxWithDB(db outboxQuerier, clk clock.Clock) *Outbox {
	if db == nil {
		panic("events: db required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Outbox{db: db, clock: clk}
}

// Enqueue inserts a PENDING row. Callers enqueue before attempting delivery
// so a crash between the two leaves a retryable row, never a lost send.
func (o *Outbox) Enqueue(ctx context.Context, leadID *uuid.UUID, channel string, payload MessagePayload) (*OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	msg := &OutboxMessage{
		ID:        uuid.New(),
		LeadID:    leadID,
		Channel:   channel,
		Payload:   payload,
		Status:    OutboxPending,
		CreatedAt: o.clock.Now(),
	}
	query := `
		INSERT INTO outbox_messages (id, lead_id, channel, payload, status, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5)
	`
	if _, err := o.db.Exec(ctx, query, msg.ID, leadID, channel, data, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return msg, nil
}

// MarkSent finalizes a delivered row.
func (o *Outbox) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_messages
		SET status = 'SENT', attempts = attempts + 1, last_error = NULL, next_retry_at = NULL
		WHERE id = $1
	`
	if _, err := o.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("events: mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure and schedules the retry at
// now + min(5*3^attempts, 1440) minutes.
func (o *Outbox) MarkFailed(ctx context.Context, id uuid.UUID, sendErr string) error {
	query := `
		UPDATE outbox_messages
		SET status = 'FAILED',
			attempts = attempts + 1,
			last_error = $2,
			next_retry_at = $3 + LEAST(5 * POWER(3, attempts), 1440) * interval '1 minute'
		WHERE id = $1
	`
	if _, err := o.db.Exec(ctx, query, id, sendErr, o.clock.Now()); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// RetryDue returns the oldest PENDING/FAILED rows whose retry time has come.
func (o *Outbox) RetryDue(ctx context.Context, limit int) ([]OutboxMessage, error) {
	query := `
		SELECT id, lead_id, channel, payload, status, attempts, last_error, next_retry_at, created_at
		FROM outbox_messages
		WHERE status IN ('PENDING', 'FAILED')
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := o.db.Query(ctx, query, o.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch due: %w", err)
	}
	defer rows.Close()

	var out []OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		var payload []byte
		if err := rows.Scan(&msg.ID, &msg.LeadID, &msg.Channel, &payload, &msg.Status, &msg.Attempts, &msg.LastError, &msg.NextRetryAt, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox row: %w", err)
		}
		if err := json.Unmarshal(payload, &msg.Payload); err != nil {
			return nil, fmt.Errorf("events: decode payload: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// RetryBackoff is the schedule MarkFailed applies, exposed for callers that
// surface it.
func RetryBackoff(attempts int) time.Duration {
	minutes := 5.0
	for i := 0; i < attempts; i++ {
		minutes *= 3
		if minutes >= 1440 {
			minutes = 1440
			break
		}
	}
	return time.Duration(minutes) * time.Minute
}

// Deliverer is the adapter contract the dispatcher drains the outbox through.
type Deliverer interface {
	Deliver(ctx context.Context, msg OutboxMessage) error
}

// Dispatcher polls the outbox and pushes due rows through the deliverer.
type Dispatcher struct {
	outbox    *Outbox
	deliverer Deliverer
	logger    *logging.Logger
	batchSize int
	interval  time.Duration
}

func NewDispatcher(outbox *Outbox, deliverer Deliverer, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		outbox:    outbox,
		deliverer: deliverer,
		logger:    logger,
		batchSize: 25,
		interval:  30 * time.Second,
	}
}

func (d *Dispatcher) WithBatchSize(size int) *Dispatcher {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	if d.outbox == nil || d.deliverer == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain processes one batch of due rows.
func (d *Dispatcher) Drain(ctx context.Context) {
	msgs, err := d.outbox.RetryDue(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, msg := range msgs {
		if err := d.deliverer.Deliver(ctx, msg); err != nil {
			if ferr := d.outbox.MarkFailed(ctx, msg.ID, err.Error()); ferr != nil {
				d.logger.Error("outbox mark failed errored", "error", ferr, "message_id", msg.ID)
			}
			d.logger.Warn("outbox delivery failed", "error", err, "message_id", msg.ID, "attempts", msg.Attempts+1)
			continue
		}
		if err := d.outbox.MarkSent(ctx, msg.ID); err != nil {
			d.logger.Error("outbox mark sent errored", "error", err, "message_id", msg.ID)
			continue
		}
		d.logger.Debug("outbox delivered", "message_id", msg.ID)
	}
}

// ErrOutboxDisabled is returned by senders that require the durable path.
var ErrOutboxDisabled = errors.New("events: outbox disabled")
