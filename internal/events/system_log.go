package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworks/booking-broker/internal/clock"
)

// System event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// SystemLog appends to the system_events audit table. All system events are
// created through Record so every row has the same shape.
type SystemLog struct {
	db    rowQuerier
	clock clock.Clock
}

func NewSystemLog(pool *pgxpool.Pool, clk clock.Clock) *SystemLog {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newSystemLogWithExec(pool, clk)
}

func newSystemLogWithExec(db rowQuerier, clk clock.Clock) *SystemLog {
	if db == nil {
		panic("events: exec required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &SystemLog{db: db, clock: clk}
}

// Record appends one system event. The payload is marshalled to JSON; a nil
// payload stores NULL.
func (l *SystemLog) Record(ctx context.Context, level, eventType string, leadID *uuid.UUID, payload any) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("events: marshal system event payload: %w", err)
		}
	}
	query := `
		INSERT INTO system_events (level, event_type, lead_id, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := l.db.Exec(ctx, query, level, eventType, leadID, data, l.clock.Now()); err != nil {
		return fmt.Errorf("events: insert system event: %w", err)
	}
	return nil
}
