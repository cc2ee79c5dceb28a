package leads

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lead's position in the finite state machine.
type Status string

const (
	StatusNew                   Status = "NEW"
	StatusQualifying            Status = "QUALIFYING"
	StatusPendingApproval       Status = "PENDING_APPROVAL"
	StatusAwaitingDeposit       Status = "AWAITING_DEPOSIT"
	StatusDepositPaid           Status = "DEPOSIT_PAID"
	StatusBookingPending        Status = "BOOKING_PENDING"
	StatusBooked                Status = "BOOKED"
	StatusRejected              Status = "REJECTED"
	StatusNeedsArtistReply      Status = "NEEDS_ARTIST_REPLY"
	StatusNeedsFollowUp         Status = "NEEDS_FOLLOW_UP"
	StatusTourConversionOffered Status = "TOUR_CONVERSION_OFFERED"
	StatusWaitlisted            Status = "WAITLISTED"
	StatusCollectingTimeWindows Status = "COLLECTING_TIME_WINDOWS"
	StatusDepositExpired        Status = "DEPOSIT_EXPIRED"
	StatusAbandoned             Status = "ABANDONED"
	StatusStale                 Status = "STALE"
	StatusOptOut                Status = "OPTOUT"
	StatusNeedsManualFollowUp   Status = "NEEDS_MANUAL_FOLLOW_UP"

	// StatusBookingLinkSent is a compatibility shim for older records. It is
	// never a transition target; the sweeper still recognizes it when
	// scanning for booking reminders.
	StatusBookingLinkSent Status = "BOOKING_LINK_SENT"
)

// legalTransitions is the full transition table. Status mutations anywhere in
// the system go through Transition or UpdateStatusIfMatches, both of which
// consult this table first.
var legalTransitions = map[Status][]Status{
	StatusNew: {StatusQualifying, StatusOptOut, StatusNeedsArtistReply},
	StatusQualifying: {
		StatusPendingApproval, StatusNeedsArtistReply, StatusNeedsFollowUp,
		StatusTourConversionOffered, StatusWaitlisted, StatusAbandoned,
		StatusStale, StatusOptOut, StatusNeedsManualFollowUp,
	},
	StatusPendingApproval: {
		StatusAwaitingDeposit, StatusRejected, StatusNeedsArtistReply,
		StatusNeedsFollowUp, StatusAbandoned, StatusStale, StatusOptOut,
	},
	StatusAwaitingDeposit: {
		StatusDepositPaid, StatusDepositExpired, StatusRejected,
		StatusNeedsArtistReply, StatusNeedsFollowUp, StatusAbandoned,
		StatusStale, StatusCollectingTimeWindows, StatusOptOut,
	},
	StatusDepositPaid: {
		StatusBookingPending, StatusNeedsArtistReply, StatusNeedsFollowUp,
		StatusOptOut,
	},
	StatusBookingPending: {
		StatusBooked, StatusNeedsArtistReply, StatusNeedsFollowUp,
		StatusCollectingTimeWindows, StatusOptOut,
	},
	StatusCollectingTimeWindows: {
		StatusNeedsArtistReply, StatusBookingPending, StatusOptOut,
	},
	StatusTourConversionOffered: {
		StatusPendingApproval, StatusWaitlisted, StatusNeedsArtistReply,
		StatusAbandoned, StatusStale, StatusOptOut,
	},
	StatusNeedsArtistReply: {
		StatusQualifying, StatusPendingApproval, StatusAwaitingDeposit,
		StatusDepositPaid, StatusBookingPending, StatusRejected,
		StatusNeedsFollowUp, StatusBooked, StatusOptOut,
	},
	StatusNeedsFollowUp: {
		StatusQualifying, StatusPendingApproval, StatusAwaitingDeposit,
		StatusBookingPending, StatusRejected, StatusNeedsArtistReply,
		StatusOptOut,
	},
	StatusNeedsManualFollowUp: {
		StatusNeedsArtistReply, StatusQualifying, StatusOptOut,
	},
	StatusDepositExpired: {
		StatusAwaitingDeposit, StatusNeedsArtistReply, StatusAbandoned,
		StatusOptOut,
	},
	// Explicit user restarts only.
	StatusAbandoned: {StatusNew},
	StatusStale:     {StatusNew},
	StatusOptOut:    {StatusNew},
	// Terminal.
	StatusBooked:     {},
	StatusRejected:   {},
	StatusWaitlisted: {},
}

// CanTransition reports whether from -> to appears in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no automated transitions.
// OPTOUT, ABANDONED and STALE still re-open to NEW on an explicit restart.
func IsTerminal(s Status) bool {
	switch s {
	case StatusBooked, StatusRejected, StatusWaitlisted, StatusOptOut:
		return true
	}
	return false
}

// statusEntryColumn maps each status to the timestamp stamped on first entry.
// Once stamped the value is never overwritten (COALESCE on write).
var statusEntryColumn = map[Status]string{
	StatusQualifying:            "qualifying_started_at",
	StatusPendingApproval:       "pending_approval_at",
	StatusAwaitingDeposit:       "approved_at",
	StatusDepositPaid:           "deposit_paid_at",
	StatusBookingPending:        "booking_pending_at",
	StatusBooked:                "booked_at",
	StatusRejected:              "rejected_at",
	StatusNeedsArtistReply:      "needs_artist_reply_at",
	StatusNeedsFollowUp:         "needs_follow_up_at",
	StatusTourConversionOffered: "tour_conversion_offered_at",
	StatusWaitlisted:            "waitlisted_at",
	StatusCollectingTimeWindows: "collecting_time_windows_at",
	StatusDepositExpired:        "deposit_expired_at",
	StatusAbandoned:             "abandoned_at",
	StatusStale:                 "stale_at",
	StatusOptOut:                "opted_out_at",
	StatusNeedsManualFollowUp:   "needs_manual_follow_up_at",
}

// Slot is one suggested appointment window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Lead is the aggregate root for one prospective booking.
type Lead struct {
	ID       uuid.UUID
	Phone    string
	ArtistID string

	Status             Status
	CurrentStep        int
	ParseFailureCounts map[string]int

	EstimatedCategory           *string
	EstimatedDays               *float64
	EstimatedDepositAmountPence *int64
	DepositAmountPence          *int64
	DepositAmountLockedAt       *time.Time
	DepositRuleVersion          *string

	LocationCity         *string
	LocationCountry      *string
	RegionBucket         *string
	MinBudgetAmountPence *int64
	BelowMinBudget       bool

	CheckoutSessionID        *string
	PaymentIntentID          *string
	DepositCheckoutExpiresAt *time.Time
	DepositSentAt            *time.Time
	DepositPaidAt            *time.Time

	SuggestedSlots      []Slot
	SelectedSlotStartAt *time.Time
	SelectedSlotEndAt   *time.Time
	CalendarEventID     *string
	TourCityOffered     *string

	QualifyingStartedAt     *time.Time
	PendingApprovalAt       *time.Time
	ApprovedAt              *time.Time
	RejectedAt              *time.Time
	StaleAt                 *time.Time
	AbandonedAt             *time.Time
	NeedsArtistReplyAt      *time.Time
	NeedsFollowUpAt         *time.Time
	TourConversionOfferedAt *time.Time
	WaitlistedAt            *time.Time
	CollectingTimeWindowsAt *time.Time
	DepositExpiredAt        *time.Time
	OptedOutAt              *time.Time
	NeedsManualFollowUpAt   *time.Time
	BookingPendingAt        *time.Time
	BookedAt                *time.Time

	NeedsArtistReplyNotifiedAt *time.Time
	NeedsFollowUpNotifiedAt    *time.Time
	HandoverLastHoldReplyAt    *time.Time
	HandoverReason             *string

	ReminderQualifying1SentAt *time.Time
	ReminderQualifying2SentAt *time.Time
	ReminderBooking24SentAt   *time.Time
	ReminderBooking72SentAt   *time.Time

	LastClientMessageAt *time.Time
	LastBotMessageAt    *time.Time

	CreatedAt time.Time
}

// Answer is one captured interview answer. Reads resolve "latest wins per
// key" by (created_at, id) order.
type Answer struct {
	ID          int64
	LeadID      uuid.UUID
	QuestionKey string
	Text        string
	CreatedAt   time.Time
}
