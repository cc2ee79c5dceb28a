package actiontokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/leads"
)

var tokenFrozenAt = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTokenStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return newStoreWithDB(mock, clock.NewFrozen(tokenFrozenAt)), mock
}

func TestCreateToken(t *testing.T) {
	store, mock := newTokenStore(t)
	leadID := uuid.New()

	mock.ExpectExec("INSERT INTO action_tokens").
		WithArgs(pgxmock.AnyArg(), leadID, "approve", string(leads.StatusPendingApproval), tokenFrozenAt.Add(7*24*time.Hour), tokenFrozenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tok, err := store.Create(context.Background(), leadID, "approve", leads.StatusPendingApproval, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(tok.Token) < 43 {
		t.Fatalf("token too short for 256-bit entropy: %d chars", len(tok.Token))
	}
	if !tok.ExpiresAt.Equal(tokenFrozenAt.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expiry = %v", tok.ExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetTokenNotFound(t *testing.T) {
	store, mock := newTokenStore(t)

	mock.ExpectQuery("SELECT token, lead_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, mock := newTokenStore(t)

	mock.ExpectExec("UPDATE action_tokens SET used = TRUE").
		WithArgs("tok_1", tokenFrozenAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE action_tokens SET used = TRUE").
		WithArgs("tok_1", tokenFrozenAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := store.Consume(context.Background(), "tok_1")
	if err != nil || !won {
		t.Fatalf("first consume: won=%v err=%v", won, err)
	}
	won, err = store.Consume(context.Background(), "tok_1")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if won {
		t.Fatal("second consume must lose the conditional update")
	}
}

func TestValidateOrder(t *testing.T) {
	now := tokenFrozenAt
	base := ActionToken{
		LeadID:         uuid.New(),
		ActionType:     "approve",
		RequiredStatus: leads.StatusPendingApproval,
		ExpiresAt:      now.Add(time.Hour),
	}

	used := base
	used.Used = true
	// Used wins even when also expired: checks run in redemption order.
	used.ExpiresAt = now.Add(-time.Hour)
	if err := used.Validate(now, leads.StatusQualifying); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("used token: %v", err)
	}

	expired := base
	expired.ExpiresAt = now
	if err := expired.Validate(now, leads.StatusPendingApproval); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token: %v", err)
	}

	moved := base
	err := moved.Validate(now, leads.StatusAwaitingDeposit)
	var mismatch *StatusMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("moved lead: %v", err)
	}
	if mismatch.Current != leads.StatusAwaitingDeposit {
		t.Fatalf("mismatch = %+v", mismatch)
	}

	if err := base.Validate(now, leads.StatusPendingApproval); err != nil {
		t.Fatalf("valid token: %v", err)
	}
}
