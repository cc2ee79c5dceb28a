package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworks/booking-broker/internal/clock"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the pgx-backed lead repository and the only place status writes
// are allowed to happen.
type Store struct {
	db    querier
	clock clock.Clock
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool *pgxpool.Pool, clk clock.Clock) *Store {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return newStoreWithDB(pool, clk)
}

func newStoreWithDB(db querier, clk clock.Clock) *Store {
	if db == nil {
		panic("leads: db required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{db: db, clock: clk}
}

const leadColumns = `id, phone, artist_id, status, current_step, parse_failure_counts,
	estimated_category, estimated_days, estimated_deposit_amount_pence, deposit_amount_pence, deposit_amount_locked_at, deposit_rule_version,
	location_city, location_country, region_bucket, min_budget_amount_pence, below_min_budget,
	checkout_session_id, payment_intent_id, deposit_checkout_expires_at, deposit_sent_at, deposit_paid_at,
	suggested_slots_json, selected_slot_start_at, selected_slot_end_at, calendar_event_id, tour_city_offered,
	qualifying_started_at, pending_approval_at, approved_at, rejected_at, stale_at, abandoned_at,
	needs_artist_reply_at, needs_follow_up_at, tour_conversion_offered_at, waitlisted_at, collecting_time_windows_at,
	deposit_expired_at, opted_out_at, needs_manual_follow_up_at, booking_pending_at, booked_at,
	needs_artist_reply_notified_at, needs_follow_up_notified_at, handover_last_hold_reply_at, handover_reason,
	reminder_qualifying_1_sent_at, reminder_qualifying_2_sent_at, reminder_booking_24_sent_at, reminder_booking_72_sent_at,
	last_client_message_at, last_bot_message_at, created_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	var status string
	var failures, slots []byte
	if err := row.Scan(
		&l.ID, &l.Phone, &l.ArtistID, &status, &l.CurrentStep, &failures,
		&l.EstimatedCategory, &l.EstimatedDays, &l.EstimatedDepositAmountPence, &l.DepositAmountPence, &l.DepositAmountLockedAt, &l.DepositRuleVersion,
		&l.LocationCity, &l.LocationCountry, &l.RegionBucket, &l.MinBudgetAmountPence, &l.BelowMinBudget,
		&l.CheckoutSessionID, &l.PaymentIntentID, &l.DepositCheckoutExpiresAt, &l.DepositSentAt, &l.DepositPaidAt,
		&slots, &l.SelectedSlotStartAt, &l.SelectedSlotEndAt, &l.CalendarEventID, &l.TourCityOffered,
		&l.QualifyingStartedAt, &l.PendingApprovalAt, &l.ApprovedAt, &l.RejectedAt, &l.StaleAt, &l.AbandonedAt,
		&l.NeedsArtistReplyAt, &l.NeedsFollowUpAt, &l.TourConversionOfferedAt, &l.WaitlistedAt, &l.CollectingTimeWindowsAt,
		&l.DepositExpiredAt, &l.OptedOutAt, &l.NeedsManualFollowUpAt, &l.BookingPendingAt, &l.BookedAt,
		&l.NeedsArtistReplyNotifiedAt, &l.NeedsFollowUpNotifiedAt, &l.HandoverLastHoldReplyAt, &l.HandoverReason,
		&l.ReminderQualifying1SentAt, &l.ReminderQualifying2SentAt, &l.ReminderBooking24SentAt, &l.ReminderBooking72SentAt,
		&l.LastClientMessageAt, &l.LastBotMessageAt, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	l.Status = Status(status)
	l.ParseFailureCounts = map[string]int{}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &l.ParseFailureCounts); err != nil {
			return nil, fmt.Errorf("leads: decode parse failure counts: %w", err)
		}
	}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &l.SuggestedSlots); err != nil {
			return nil, fmt.Errorf("leads: decode suggested slots: %w", err)
		}
	}
	return &l, nil
}

// GetByID fetches a lead.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select by id: %w", err)
	}
	return lead, nil
}

// GetByPhone fetches a lead by its external phone identifier within the
// artist namespace.
func (s *Store) GetByPhone(ctx context.Context, phone, artistID string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE phone = $1 AND artist_id = $2`
	lead, err := scanLead(s.db.QueryRow(ctx, query, phone, artistID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select by phone: %w", err)
	}
	return lead, nil
}

// GetByCheckoutSession fetches the lead a checkout session belongs to.
func (s *Store) GetByCheckoutSession(ctx context.Context, sessionID string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE checkout_session_id = $1`
	lead, err := scanLead(s.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select by checkout session: %w", err)
	}
	return lead, nil
}

// GetOrCreateByPhone resolves the lead for an inbound phone, creating a NEW
// row on first contact.
func (s *Store) GetOrCreateByPhone(ctx context.Context, phone, artistID string) (*Lead, error) {
	insert := `
		INSERT INTO leads (id, phone, artist_id, status, created_at)
		VALUES ($1, $2, $3, 'NEW', $4)
		ON CONFLICT (phone, artist_id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, insert, uuid.New(), phone, artistID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("leads: insert lead: %w", err)
	}
	return s.GetByPhone(ctx, phone, artistID)
}

// Transition moves a lead between statuses under a row lock. The transition
// must be legal for the caller's expected from status, and the locked re-read
// must still observe that status; otherwise the lead is left unchanged and an
// error is raised.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to Status, reason string) (*Lead, error) {
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{From: from, To: to}
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	if err := tx.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: lock row: %w", err)
	}
	if Status(current) != from {
		return nil, &ChangedDuringTransitionError{Expected: from, Actual: Status(current)}
	}

	sets := []string{"status = $2"}
	args := []any{id, string(to)}
	if col, ok := statusEntryColumn[to]; ok {
		args = append(args, s.clock.Now())
		sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, $%d)", col, col, len(args)))
	}
	if to == StatusNeedsArtistReply && reason != "" {
		args = append(args, reason)
		sets = append(sets, fmt.Sprintf("handover_reason = $%d", len(args)))
	}
	if to == StatusNew {
		// Explicit restart: the interview begins again from the top.
		sets = append(sets, "current_step = 0", "parse_failure_counts = '{}'::jsonb", "handover_reason = NULL")
	}
	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $1 RETURNING %s", strings.Join(sets, ", "), leadColumns)
	lead, err := scanLead(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("leads: transition update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit transition: %w", err)
	}
	return lead, nil
}

// StatusSet carries the optional column writes applied together with a
// conditional status update.
type StatusSet struct {
	PaymentIntentID   *string
	DepositPaidAt     *time.Time
	CheckoutSessionID *string
	DepositSentAt     *time.Time
	CalendarEventID   *string
	SuggestedSlots    []Slot
	HandoverReason    *string
}

// UpdateStatusIfMatches performs an atomic conditional status update
// (WHERE status = expected). It reports whether the caller won; losers get
// the current row back and must back out without side-effects.
func (s *Store) UpdateStatusIfMatches(ctx context.Context, id uuid.UUID, expected, next Status, set StatusSet) (bool, *Lead, error) {
	if !CanTransition(expected, next) {
		return false, nil, &InvalidTransitionError{From: expected, To: next}
	}

	sets := []string{"status = $3"}
	args := []any{id, string(expected), string(next)}
	add := func(clause string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(clause, len(args)))
	}
	if col, ok := statusEntryColumn[next]; ok {
		add(col+" = COALESCE("+col+", $%d)", s.clock.Now())
	}
	if set.PaymentIntentID != nil {
		add("payment_intent_id = $%d", *set.PaymentIntentID)
	}
	if set.DepositPaidAt != nil {
		add("deposit_paid_at = COALESCE(deposit_paid_at, $%d)", *set.DepositPaidAt)
	}
	if set.CheckoutSessionID != nil {
		add("checkout_session_id = $%d", *set.CheckoutSessionID)
	}
	if set.DepositSentAt != nil {
		add("deposit_sent_at = $%d", *set.DepositSentAt)
	}
	if set.CalendarEventID != nil {
		add("calendar_event_id = $%d", *set.CalendarEventID)
	}
	if set.SuggestedSlots != nil {
		data, err := json.Marshal(set.SuggestedSlots)
		if err != nil {
			return false, nil, fmt.Errorf("leads: encode slots: %w", err)
		}
		add("suggested_slots_json = $%d", data)
	}
	if set.HandoverReason != nil {
		add("handover_reason = $%d", *set.HandoverReason)
	}

	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $1 AND status = $2 RETURNING %s", strings.Join(sets, ", "), leadColumns)
	lead, err := scanLead(s.db.QueryRow(ctx, query, args...))
	if err == nil {
		return true, lead, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("leads: conditional status update: %w", err)
	}
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}

// AdvanceStepIfAt atomically advances current_step from the expected value.
// Only the worker whose update affected a row may emit the next outbound.
func (s *Store) AdvanceStepIfAt(ctx context.Context, id uuid.UUID, expectedStep int) (bool, error) {
	query := `UPDATE leads SET current_step = $2 + 1 WHERE id = $1 AND current_step = $2`
	ct, err := s.db.Exec(ctx, query, id, expectedStep)
	if err != nil {
		return false, fmt.Errorf("leads: advance step: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ForceStatus bypasses the transition table. Reserved for unknown-status
// recovery; every other caller must use Transition.
func (s *Store) ForceStatus(ctx context.Context, id uuid.UUID, to Status) error {
	query := `UPDATE leads SET status = $2, current_step = 0, parse_failure_counts = '{}'::jsonb WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, string(to)); err != nil {
		return fmt.Errorf("leads: force status: %w", err)
	}
	return nil
}

// SetLastClientMessageAt records the inbound window anchor.
func (s *Store) SetLastClientMessageAt(ctx context.Context, id uuid.UUID, t time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE leads SET last_client_message_at = $2 WHERE id = $1`, id, t); err != nil {
		return fmt.Errorf("leads: set last client message: %w", err)
	}
	return nil
}

// SetLastBotMessageAt records the outbound timestamp.
func (s *Store) SetLastBotMessageAt(ctx context.Context, id uuid.UUID, t time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE leads SET last_bot_message_at = $2 WHERE id = $1`, id, t); err != nil {
		return fmt.Errorf("leads: set last bot message: %w", err)
	}
	return nil
}

// TouchHoldReply stamps the rate-limit anchor for holding replies during
// handover.
func (s *Store) TouchHoldReply(ctx context.Context, id uuid.UUID, t time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE leads SET handover_last_hold_reply_at = $2 WHERE id = $1`, id, t); err != nil {
		return fmt.Errorf("leads: touch hold reply: %w", err)
	}
	return nil
}

// IncrementParseFailure bumps the per-field failure counter and returns the
// new count.
func (s *Store) IncrementParseFailure(ctx context.Context, id uuid.UUID, field string) (int, error) {
	query := `
		UPDATE leads
		SET parse_failure_counts = jsonb_set(
			COALESCE(parse_failure_counts, '{}'::jsonb),
			ARRAY[$2],
			to_jsonb(COALESCE((parse_failure_counts ->> $2)::int, 0) + 1)
		)
		WHERE id = $1
		RETURNING (parse_failure_counts ->> $2)::int
	`
	var count int
	if err := s.db.QueryRow(ctx, query, id, field).Scan(&count); err != nil {
		return 0, fmt.Errorf("leads: increment parse failure: %w", err)
	}
	return count, nil
}

// ResetParseFailure zeroes the per-field failure counter after a successful
// parse.
func (s *Store) ResetParseFailure(ctx context.Context, id uuid.UUID, field string) error {
	query := `
		UPDATE leads
		SET parse_failure_counts = jsonb_set(
			COALESCE(parse_failure_counts, '{}'::jsonb),
			ARRAY[$2],
			'0'::jsonb
		)
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id, field); err != nil {
		return fmt.Errorf("leads: reset parse failure: %w", err)
	}
	return nil
}

// SaveAnswer appends a captured answer.
func (s *Store) SaveAnswer(ctx context.Context, leadID uuid.UUID, questionKey, text string) (*Answer, error) {
	query := `
		INSERT INTO lead_answers (lead_id, question_key, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	now := s.clock.Now()
	var id int64
	if err := s.db.QueryRow(ctx, query, leadID, questionKey, text, now).Scan(&id); err != nil {
		return nil, fmt.Errorf("leads: insert answer: %w", err)
	}
	return &Answer{ID: id, LeadID: leadID, QuestionKey: questionKey, Text: text, CreatedAt: now}, nil
}

// LatestAnswers returns the latest answer per question key, resolved by
// (created_at, id) order.
func (s *Store) LatestAnswers(ctx context.Context, leadID uuid.UUID) (map[string]string, error) {
	query := `
		SELECT DISTINCT ON (question_key) question_key, text
		FROM lead_answers
		WHERE lead_id = $1
		ORDER BY question_key, created_at DESC, id DESC
	`
	rows, err := s.db.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("leads: select answers: %w", err)
	}
	defer rows.Close()

	answers := map[string]string{}
	for rows.Next() {
		var key, text string
		if err := rows.Scan(&key, &text); err != nil {
			return nil, fmt.Errorf("leads: scan answer: %w", err)
		}
		answers[key] = text
	}
	return answers, rows.Err()
}

// CountAnswers returns the number of captured answers for a question key.
func (s *Store) CountAnswers(ctx context.Context, leadID uuid.UUID, questionKey string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM lead_answers WHERE lead_id = $1 AND question_key = $2`
	if err := s.db.QueryRow(ctx, query, leadID, questionKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("leads: count answers: %w", err)
	}
	return count, nil
}

// Estimation is the derived output of complete_qualification persisted onto
// the lead.
type Estimation struct {
	Category             string
	Days                 *float64
	DepositPence         int64
	LocationCity         string
	LocationCountry      string
	RegionBucket         string
	MinBudgetAmountPence int64
	BelowMinBudget       bool
}

// SetEstimation writes the derived estimate fields.
func (s *Store) SetEstimation(ctx context.Context, id uuid.UUID, est Estimation) error {
	query := `
		UPDATE leads
		SET estimated_category = $2,
			estimated_days = $3,
			estimated_deposit_amount_pence = $4,
			location_city = $5,
			location_country = $6,
			region_bucket = $7,
			min_budget_amount_pence = $8,
			below_min_budget = $9
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id,
		est.Category, est.Days, est.DepositPence,
		est.LocationCity, est.LocationCountry, est.RegionBucket,
		est.MinBudgetAmountPence, est.BelowMinBudget,
	); err != nil {
		return fmt.Errorf("leads: set estimation: %w", err)
	}
	return nil
}

// LockDeposit locks the deposit amount on first write and returns the locked
// value. A locked amount is never reduced; later calls return the original.
func (s *Store) LockDeposit(ctx context.Context, id uuid.UUID, amountPence int64, ruleVersion string) (int64, error) {
	query := `
		UPDATE leads
		SET deposit_amount_pence = COALESCE(deposit_amount_pence, $2),
			deposit_amount_locked_at = COALESCE(deposit_amount_locked_at, $3),
			deposit_rule_version = COALESCE(deposit_rule_version, $4)
		WHERE id = $1
		RETURNING deposit_amount_pence
	`
	var locked int64
	if err := s.db.QueryRow(ctx, query, id, amountPence, s.clock.Now(), ruleVersion).Scan(&locked); err != nil {
		return 0, fmt.Errorf("leads: lock deposit: %w", err)
	}
	return locked, nil
}

// SetCheckout records the hosted checkout session issued for the deposit.
func (s *Store) SetCheckout(ctx context.Context, id uuid.UUID, sessionID string, expiresAt time.Time) error {
	query := `
		UPDATE leads
		SET checkout_session_id = $2, deposit_sent_at = $3, deposit_checkout_expires_at = $4
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id, sessionID, s.clock.Now(), expiresAt); err != nil {
		return fmt.Errorf("leads: set checkout: %w", err)
	}
	return nil
}

// SetSuggestedSlots stores the operator-supplied slot list.
func (s *Store) SetSuggestedSlots(ctx context.Context, id uuid.UUID, slots []Slot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("leads: encode slots: %w", err)
	}
	if _, err := s.db.Exec(ctx, `UPDATE leads SET suggested_slots_json = $2 WHERE id = $1`, id, data); err != nil {
		return fmt.Errorf("leads: set suggested slots: %w", err)
	}
	return nil
}

// SetSelectedSlot records the client's slot choice.
func (s *Store) SetSelectedSlot(ctx context.Context, id uuid.UUID, slot Slot) error {
	query := `UPDATE leads SET selected_slot_start_at = $2, selected_slot_end_at = $3 WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, slot.Start, slot.End); err != nil {
		return fmt.Errorf("leads: set selected slot: %w", err)
	}
	return nil
}

// SetTourCityOffered records the tour city offered during conversion.
func (s *Store) SetTourCityOffered(ctx context.Context, id uuid.UUID, city string) error {
	if _, err := s.db.Exec(ctx, `UPDATE leads SET tour_city_offered = $2 WHERE id = $1`, id, city); err != nil {
		return fmt.Errorf("leads: set tour city: %w", err)
	}
	return nil
}

// AcceptTourCity overwrites the captured location with the accepted tour city.
func (s *Store) AcceptTourCity(ctx context.Context, id uuid.UUID, city string) error {
	if _, err := s.db.Exec(ctx, `UPDATE leads SET location_city = $2 WHERE id = $1`, id, city); err != nil {
		return fmt.Errorf("leads: accept tour city: %w", err)
	}
	return nil
}

// MarkHandoverNotified stamps the one-shot operator notification timestamp
// for handover.
func (s *Store) MarkHandoverNotified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE leads SET needs_artist_reply_notified_at = COALESCE(needs_artist_reply_notified_at, $2) WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, s.clock.Now()); err != nil {
		return fmt.Errorf("leads: mark handover notified: %w", err)
	}
	return nil
}

// MarkFollowUpNotified stamps the one-shot operator notification timestamp
// for follow-up.
func (s *Store) MarkFollowUpNotified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE leads SET needs_follow_up_notified_at = COALESCE(needs_follow_up_notified_at, $2) WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, s.clock.Now()); err != nil {
		return fmt.Errorf("leads: mark follow-up notified: %w", err)
	}
	return nil
}

// StampQualifyingReminder records that the ordinal qualifying reminder went
// out.
func (s *Store) StampQualifyingReminder(ctx context.Context, id uuid.UUID, ordinal int) error {
	col := "reminder_qualifying_1_sent_at"
	if ordinal == 2 {
		col = "reminder_qualifying_2_sent_at"
	}
	query := fmt.Sprintf(`UPDATE leads SET %s = COALESCE(%s, $2) WHERE id = $1`, col, col)
	if _, err := s.db.Exec(ctx, query, id, s.clock.Now()); err != nil {
		return fmt.Errorf("leads: stamp qualifying reminder: %w", err)
	}
	return nil
}

// StampBookingReminder records that a 24h or 72h booking reminder went out.
func (s *Store) StampBookingReminder(ctx context.Context, id uuid.UUID, hours int) error {
	col := "reminder_booking_24_sent_at"
	if hours == 72 {
		col = "reminder_booking_72_sent_at"
	}
	query := fmt.Sprintf(`UPDATE leads SET %s = COALESCE(%s, $2) WHERE id = $1`, col, col)
	if _, err := s.db.Exec(ctx, query, id, s.clock.Now()); err != nil {
		return fmt.Errorf("leads: stamp booking reminder: %w", err)
	}
	return nil
}

func (s *Store) listLeads(ctx context.Context, query string, args ...any) ([]*Lead, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list query: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan list row: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// ListQualifyingIdleSince returns QUALIFYING leads whose last inbound is at
// or before the cutoff. The sweeper applies the finer 12h/36h/48h thresholds.
func (s *Store) ListQualifyingIdleSince(ctx context.Context, cutoff time.Time, limit int) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE status = 'QUALIFYING'
		  AND last_client_message_at IS NOT NULL
		  AND last_client_message_at <= $1
		ORDER BY last_client_message_at
		LIMIT $2`
	return s.listLeads(ctx, query, cutoff, limit)
}

// ListPendingApprovalBefore returns PENDING_APPROVAL leads older than the
// cutoff.
func (s *Store) ListPendingApprovalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE status = 'PENDING_APPROVAL'
		  AND pending_approval_at IS NOT NULL
		  AND pending_approval_at <= $1
		ORDER BY pending_approval_at
		LIMIT $2`
	return s.listLeads(ctx, query, cutoff, limit)
}

// ListAwaitingDepositExpired returns AWAITING_DEPOSIT leads whose checkout
// went out before the cutoff and was never paid.
func (s *Store) ListAwaitingDepositExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE status = 'AWAITING_DEPOSIT'
		  AND deposit_sent_at IS NOT NULL
		  AND deposit_sent_at <= $1
		  AND deposit_paid_at IS NULL
		ORDER BY deposit_sent_at
		LIMIT $2`
	return s.listLeads(ctx, query, cutoff, limit)
}

// ListBookingPendingBefore returns BOOKING_PENDING leads older than the
// cutoff.
func (s *Store) ListBookingPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE status = 'BOOKING_PENDING'
		  AND booking_pending_at IS NOT NULL
		  AND booking_pending_at <= $1
		ORDER BY booking_pending_at
		LIMIT $2`
	return s.listLeads(ctx, query, cutoff, limit)
}

// ListBookingReminderCandidates returns paid leads due a booking nudge.
// BOOKING_LINK_SENT is accepted for older records.
func (s *Store) ListBookingReminderCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE status IN ('DEPOSIT_PAID', 'BOOKING_LINK_SENT')
		  AND deposit_paid_at IS NOT NULL
		  AND deposit_paid_at <= $1
		ORDER BY deposit_paid_at
		LIMIT $2`
	return s.listLeads(ctx, query, cutoff, limit)
}
