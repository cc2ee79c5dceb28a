package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// processedEventsConstraint is the unique key the duplicate classification
// keys off. Any other integrity error is re-raised.
const processedEventsConstraint = "processed_events_provider_external_id_key"

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedEvent is one recorded (provider, external_id) processing.
type ProcessedEvent struct {
	ID          int64
	Provider    string
	ExternalID  string
	EventType   string
	LeadID      *uuid.UUID
	ProcessedAt time.Time
}

// ProcessedStore is the idempotency primitive: insertion of the
// (provider, external_id) pair is the single synchronization point for
// duplicate suppression.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: db}
}

// CheckAndRecord atomically inserts the processing record. On a unique-key
// conflict for (provider, external_id) it returns (true, existing) without
// raising; any other integrity error propagates.
func (s *ProcessedStore) CheckAndRecord(ctx context.Context, provider, externalID, eventType string, leadID *uuid.UUID) (bool, *ProcessedEvent, error) {
	query := `
		INSERT INTO processed_events (provider, external_id, event_type, lead_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, processed_at
	`
	rec := &ProcessedEvent{
		Provider:   provider,
		ExternalID: externalID,
		EventType:  eventType,
		LeadID:     leadID,
	}
	err := s.db.QueryRow(ctx, query, provider, externalID, eventType, leadID).Scan(&rec.ID, &rec.ProcessedAt)
	if err == nil {
		return false, rec, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == processedEventsConstraint {
		existing, gerr := s.get(ctx, provider, externalID)
		if gerr != nil {
			return true, nil, gerr
		}
		return true, existing, nil
	}
	return false, nil, fmt.Errorf("events: record processed: %w", err)
}

// CheckOnly reports duplicate status without recording anything. The payment
// correlator uses this as its read-only pre-check.
func (s *ProcessedStore) CheckOnly(ctx context.Context, provider, externalID string) (bool, *ProcessedEvent, error) {
	rec, err := s.get(ctx, provider, externalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, rec, nil
}

func (s *ProcessedStore) get(ctx context.Context, provider, externalID string) (*ProcessedEvent, error) {
	query := `
		SELECT id, provider, external_id, event_type, lead_id, processed_at
		FROM processed_events
		WHERE provider = $1 AND external_id = $2
	`
	var rec ProcessedEvent
	if err := s.db.QueryRow(ctx, query, provider, externalID).Scan(
		&rec.ID, &rec.Provider, &rec.ExternalID, &rec.EventType, &rec.LeadID, &rec.ProcessedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("events: select processed: %w", err)
	}
	return &rec, nil
}
