// Package actiontokens issues and redeems the single-use tokens behind
// operator confirmation links. A token binds one action to one lead in one
// expected status; redemption is an atomic conditional update so two clicks
// can never both execute.
package actiontokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/leads"
)

// tokenBytes gives 384 bits of entropy, comfortably above the 256-bit floor.
const tokenBytes = 48

var (
	ErrTokenNotFound = errors.New("actiontokens: token not found")
	ErrTokenUsed     = errors.New("actiontokens: token already used")
	ErrTokenExpired  = errors.New("actiontokens: token expired")
)

// StatusMismatchError reports a lead that moved out of the status the token
// was minted for.
type StatusMismatchError struct {
	Required leads.Status
	Current  leads.Status
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("actiontokens: lead is %s, token requires %s", e.Current, e.Required)
}

// ActionToken is one out-of-band operator confirmation link.
type ActionToken struct {
	Token          string
	LeadID         uuid.UUID
	ActionType     string
	RequiredStatus leads.Status
	ExpiresAt      time.Time
	Used           bool
	UsedAt         *time.Time
	CreatedAt      time.Time
}

// Validate applies the redemption checks in order: used, expired, lead
// status. Existence is the caller's Get.
func (t *ActionToken) Validate(now time.Time, current leads.Status) error {
	if t.Used {
		return ErrTokenUsed
	}
	if !t.ExpiresAt.After(now) {
		return ErrTokenExpired
	}
	if current != t.RequiredStatus {
		return &StatusMismatchError{Required: t.RequiredStatus, Current: current}
	}
	return nil
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db    rowQuerier
	clock clock.Clock
}

func NewStore(pool *pgxpool.Pool, clk clock.Clock) *Store {
	if pool == nil {
		panic("actiontokens: pgx pool required")
	}
	return newStoreWithDB(pool, clk)
}

func newStoreWithDB(db rowQuerier, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{db: db, clock: clk}
}

// Create mints a token for one lead action.
func (s *Store) Create(ctx context.Context, leadID uuid.UUID, actionType string, requiredStatus leads.Status, ttl time.Duration) (*ActionToken, error) {
	now := s.clock.Now()
	tok := &ActionToken{
		Token:          clock.NewToken(tokenBytes),
		LeadID:         leadID,
		ActionType:     actionType,
		RequiredStatus: requiredStatus,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}
	query := `
		INSERT INTO action_tokens (token, lead_id, action_type, required_status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query, tok.Token, tok.LeadID, tok.ActionType, string(tok.RequiredStatus), tok.ExpiresAt, tok.CreatedAt); err != nil {
		return nil, fmt.Errorf("actiontokens: insert token: %w", err)
	}
	return tok, nil
}

// Get loads a token by its opaque value.
func (s *Store) Get(ctx context.Context, token string) (*ActionToken, error) {
	query := `
		SELECT token, lead_id, action_type, required_status, expires_at, used, used_at, created_at
		FROM action_tokens
		WHERE token = $1
	`
	var (
		tok    ActionToken
		status string
	)
	err := s.db.QueryRow(ctx, query, token).Scan(
		&tok.Token, &tok.LeadID, &tok.ActionType, &status, &tok.ExpiresAt, &tok.Used, &tok.UsedAt, &tok.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("actiontokens: select token: %w", err)
	}
	tok.RequiredStatus = leads.Status(status)
	return &tok, nil
}

// Consume marks the token used. The WHERE used = FALSE guard makes the
// redemption single-use; the second caller observes rowcount 0.
func (s *Store) Consume(ctx context.Context, token string) (bool, error) {
	query := `UPDATE action_tokens SET used = TRUE, used_at = $2 WHERE token = $1 AND used = FALSE`
	ct, err := s.db.Exec(ctx, query, token, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("actiontokens: consume token: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
