package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/inkworks/booking-broker/internal/clock"
)

var leadColumnNames = []string{
	"id", "phone", "artist_id", "status", "current_step", "parse_failure_counts",
	"estimated_category", "estimated_days", "estimated_deposit_amount_pence", "deposit_amount_pence", "deposit_amount_locked_at", "deposit_rule_version",
	"location_city", "location_country", "region_bucket", "min_budget_amount_pence", "below_min_budget",
	"checkout_session_id", "payment_intent_id", "deposit_checkout_expires_at", "deposit_sent_at", "deposit_paid_at",
	"suggested_slots_json", "selected_slot_start_at", "selected_slot_end_at", "calendar_event_id", "tour_city_offered",
	"qualifying_started_at", "pending_approval_at", "approved_at", "rejected_at", "stale_at", "abandoned_at",
	"needs_artist_reply_at", "needs_follow_up_at", "tour_conversion_offered_at", "waitlisted_at", "collecting_time_windows_at",
	"deposit_expired_at", "opted_out_at", "needs_manual_follow_up_at", "booking_pending_at", "booked_at",
	"needs_artist_reply_notified_at", "needs_follow_up_notified_at", "handover_last_hold_reply_at", "handover_reason",
	"reminder_qualifying_1_sent_at", "reminder_qualifying_2_sent_at", "reminder_booking_24_sent_at", "reminder_booking_72_sent_at",
	"last_client_message_at", "last_bot_message_at", "created_at",
}

func leadRow(id uuid.UUID, status Status, step int) *pgxmock.Rows {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(leadColumnNames).AddRow(
		id, "447700900001", "default", string(status), step, []byte(`{}`),
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, false,
		nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
		nil, nil, nil, nil,
		nil, nil, nil, nil,
		nil, nil, now,
	)
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	clk := clock.NewFrozen(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	return newStoreWithDB(mock, clk), mock
}

func TestTransitionIllegalPairRaisesWithoutTouchingDB(t *testing.T) {
	store, mock := newTestStore(t)
	_, err := store.Transition(context.Background(), uuid.New(), StatusQualifying, StatusBooked, "")
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db should not be touched: %v", err)
	}
}

func TestTransitionChangedDuringTransition(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM leads").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("NEEDS_ARTIST_REPLY"))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), id, StatusQualifying, StatusPendingApproval, "")
	var cde *ChangedDuringTransitionError
	if !errors.As(err, &cde) {
		t.Fatalf("expected ChangedDuringTransitionError, got %v", err)
	}
	if cde.Actual != StatusNeedsArtistReply {
		t.Fatalf("expected actual NEEDS_ARTIST_REPLY, got %s", cde.Actual)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionStampsEntryTimestampAndReason(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM leads").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("QUALIFYING"))
	mock.ExpectQuery("UPDATE leads SET status").
		WithArgs(id, "NEEDS_ARTIST_REPLY", pgxmock.AnyArg(), "Unable to parse budget after 3 attempts").
		WillReturnRows(leadRow(id, StatusNeedsArtistReply, 5))
	mock.ExpectCommit()

	lead, err := store.Transition(context.Background(), id, StatusQualifying, StatusNeedsArtistReply, "Unable to parse budget after 3 attempts")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if lead.Status != StatusNeedsArtistReply {
		t.Fatalf("expected NEEDS_ARTIST_REPLY, got %s", lead.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionMissingLead(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM leads").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), id, StatusNew, StatusQualifying, "")
	if !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestUpdateStatusIfMatchesWinner(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()
	intent := "pi_123"
	paidAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE leads SET status").
		WithArgs(id, "AWAITING_DEPOSIT", "DEPOSIT_PAID", pgxmock.AnyArg(), intent, paidAt).
		WillReturnRows(leadRow(id, StatusDepositPaid, 13))

	ok, lead, err := store.UpdateStatusIfMatches(context.Background(), id, StatusAwaitingDeposit, StatusDepositPaid, StatusSet{
		PaymentIntentID: &intent,
		DepositPaidAt:   &paidAt,
	})
	if err != nil || !ok {
		t.Fatalf("expected win, got ok=%v err=%v", ok, err)
	}
	if lead.Status != StatusDepositPaid {
		t.Fatalf("expected DEPOSIT_PAID, got %s", lead.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStatusIfMatchesLoserBacksOut(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE leads SET status").
		WithArgs(id, string(StatusAwaitingDeposit), string(StatusDepositPaid), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id").
		WithArgs(id).
		WillReturnRows(leadRow(id, StatusDepositPaid, 13))

	ok, current, err := store.UpdateStatusIfMatches(context.Background(), id, StatusAwaitingDeposit, StatusDepositPaid, StatusSet{})
	if err != nil {
		t.Fatalf("loser must not error: %v", err)
	}
	if ok {
		t.Fatal("expected loser")
	}
	if current.Status != StatusDepositPaid {
		t.Fatalf("expected current row, got %s", current.Status)
	}
}

func TestUpdateStatusIfMatchesRejectsIllegalPair(t *testing.T) {
	store, _ := newTestStore(t)
	_, _, err := store.UpdateStatusIfMatches(context.Background(), uuid.New(), StatusBooked, StatusQualifying, StatusSet{})
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestAdvanceStepIfAtWinnerAndLoser(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE leads SET current_step").
		WithArgs(id, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	won, err := store.AdvanceStepIfAt(context.Background(), id, 3)
	if err != nil || !won {
		t.Fatalf("expected winner, got won=%v err=%v", won, err)
	}

	mock.ExpectExec("UPDATE leads SET current_step").
		WithArgs(id, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	won, err = store.AdvanceStepIfAt(context.Background(), id, 3)
	if err != nil {
		t.Fatalf("loser must not error: %v", err)
	}
	if won {
		t.Fatal("expected loser")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementAndResetParseFailure(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE leads").
		WithArgs(id, "budget").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	count, err := store.IncrementParseFailure(context.Background(), id, "budget")
	if err != nil || count != 3 {
		t.Fatalf("expected count 3, got %d err=%v", count, err)
	}

	mock.ExpectExec("UPDATE leads").
		WithArgs(id, "budget").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.ResetParseFailure(context.Background(), id, "budget"); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestLockDepositReturnsLockedValue(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	// First write locks at 20000; a later attempt with a different amount
	// still returns the locked value.
	mock.ExpectQuery("UPDATE leads").
		WithArgs(id, int64(20000), pgxmock.AnyArg(), "v1").
		WillReturnRows(pgxmock.NewRows([]string{"deposit_amount_pence"}).AddRow(int64(20000)))
	locked, err := store.LockDeposit(context.Background(), id, 20000, "v1")
	if err != nil || locked != 20000 {
		t.Fatalf("lock: %d %v", locked, err)
	}

	mock.ExpectQuery("UPDATE leads").
		WithArgs(id, int64(15000), pgxmock.AnyArg(), "v1").
		WillReturnRows(pgxmock.NewRows([]string{"deposit_amount_pence"}).AddRow(int64(20000)))
	locked, err = store.LockDeposit(context.Background(), id, 15000, "v1")
	if err != nil || locked != 20000 {
		t.Fatalf("second lock must return original value: %d %v", locked, err)
	}
}

func TestLatestAnswers(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT DISTINCT ON").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"question_key", "text"}).
			AddRow("budget", "500").
			AddRow("dimensions", "10x15cm"))

	answers, err := store.LatestAnswers(context.Background(), id)
	if err != nil {
		t.Fatalf("latest answers: %v", err)
	}
	if answers["budget"] != "500" || answers["dimensions"] != "10x15cm" {
		t.Fatalf("unexpected answers: %v", answers)
	}
}
