package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/internal/messaging"
	"github.com/inkworks/booking-broker/internal/pricing"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// inboundWindow mirrors the channel's 24h free-form messaging window.
const inboundWindow = 24 * time.Hour

// holdReplyCadence rate-limits the holding reply while the artist owns the
// conversation.
const holdReplyCadence = 6 * time.Hour

const maxParseAttempts = 3

// Inbound is one client message after webhook validation.
type Inbound struct {
	Text      string
	HasMedia  bool
	MediaID   string
	Timestamp time.Time // provider timestamp; zero when unknown
}

// Result classifies what one inbound produced.
type Result struct {
	Type string
}

const (
	ResultOutOfOrder    = "out_of_order"
	ResultOptedOut      = "opted_out"
	ResultRestarted     = "restarted"
	ResultQuestionSent  = "question_sent"
	ResultRepairSent    = "repair_sent"
	ResultGuarded       = "guard_reprompt"
	ResultHandover      = "handover"
	ResultLostRace      = "lost_race"
	ResultStatusReply   = "status_reply"
	ResultCompleted     = "qualification_complete"
	ResultBelowBudget   = "below_min_budget"
	ResultTourOffered   = "tour_offered"
	ResultWaitlisted    = "waitlisted"
	ResultSlotSelected  = "slot_selected"
	ResultWindowSaved   = "time_window_saved"
	ResultHold          = "hold_reply"
	ResultHoldSuppress  = "hold_suppressed"
	ResultWindowClosed  = "window_closed"
	ResultAcknowledged  = "acknowledged"
)

// Service is the conversation orchestrator: it owns the status dispatch
// table and the qualifying interview.
type Service struct {
	store    leadStore
	copy     Copy
	sender   OutboundSender
	notifier Notifier
	sysLog   systemLogger
	tour     *TourSchedule
	clock    clock.Clock
	logger   *logging.Logger
}

// NewService wires the orchestrator against the concrete repository and
// system log.
func NewService(store *leads.Store, copyDeck Copy, sender OutboundSender, notifier Notifier, sysLog *events.SystemLog, tour *TourSchedule, clk clock.Clock, logger *logging.Logger) *Service {
	return newService(store, copyDeck, sender, notifier, sysLog, tour, clk, logger)
}

func newService(store leadStore, copyDeck Copy, sender OutboundSender, notifier Notifier, sysLog systemLogger, tour *TourSchedule, clk clock.Clock, logger *logging.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tour == nil {
		tour = &TourSchedule{}
	}
	return &Service{
		store:    store,
		copy:     copyDeck,
		sender:   sender,
		notifier: notifier,
		sysLog:   sysLog,
		tour:     tour,
		clock:    clk,
		logger:   logger,
	}
}

var restartKeywords = map[string]bool{
	"START": true, "RESUME": true, "CONTINUE": true, "YES": true,
}

var optOutKeywords = map[string]bool{
	"STOP": true, "STOPALL": true, "UNSUBSCRIBE": true,
	"OPT OUT": true, "OPT-OUT": true, "OPTOUT": true,
}

func isOptOut(upper string) bool {
	return optOutKeywords[strings.Trim(upper, " .!")]
}

func isHumanRequest(upper string) bool {
	for _, kw := range []string{"HUMAN", "REAL PERSON", "SPEAK TO SOMEONE", "TALK TO A PERSON", "AGENT"} {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// handoverTriggers are free-text signals that route the conversation to the
// artist mid-interview.
var handoverTriggers = []struct {
	phrases []string
	reason  string
}{
	{[]string{"cover up", "cover-up", "coverup", "covering a scar", "cover a scar"}, "Client mentioned a cover-up"},
	{[]string{"not sure", "unsure", "still deciding", "need to think", "thinking about it"}, "Client sounds hesitant"},
	{[]string{"discount", "cheaper", "price match", "negotiate", "best price", "do a deal"}, "Client wants to discuss pricing"},
	{[]string{"are you free", "when are you free", "do you have space", "next available", "any availability"}, "Client asked about availability"},
}

func dynamicHandoverReason(text string, q Question) string {
	lower := strings.ToLower(Normalize(text))
	for _, trig := range handoverTriggers {
		if trig.reason == "Client mentioned a cover-up" && q.Key == "coverup" {
			continue // the cover-up question legitimately talks about cover-ups
		}
		for _, p := range trig.phrases {
			if strings.Contains(lower, p) {
				return trig.reason
			}
		}
	}
	if len([]rune(lower)) > 280 && strings.Contains(lower, "?") {
		return "Client asked a detailed question"
	}
	return ""
}

// HandleInbound is the orchestrator entry point for one validated client
// message. The caller resolved the lead; duplicate suppression happened
// upstream.
func (s *Service) HandleInbound(ctx context.Context, lead *leads.Lead, in Inbound) (*Result, error) {
	if !in.Timestamp.IsZero() && lead.LastClientMessageAt != nil && in.Timestamp.Before(*lead.LastClientMessageAt) {
		return &Result{Type: ResultOutOfOrder}, nil
	}

	upper := strings.ToUpper(Normalize(in.Text))

	// Opt-out wins everywhere it is a legal move.
	if lead.Status != leads.StatusOptOut && isOptOut(upper) && leads.CanTransition(lead.Status, leads.StatusOptOut) {
		return s.optOut(ctx, lead)
	}

	switch lead.Status {
	case leads.StatusOptOut:
		if restartKeywords[strings.Trim(upper, " .!")] {
			return s.restart(ctx, lead, in)
		}
		return &Result{Type: ResultOptedOut}, nil

	case leads.StatusAbandoned, leads.StatusStale:
		if err := s.store.SetLastClientMessageAt(ctx, lead.ID, s.clock.Now()); err != nil {
			return nil, err
		}
		return s.restart(ctx, lead, in)

	case leads.StatusNew:
		return s.startQualifying(ctx, lead)

	case leads.StatusQualifying:
		return s.qualifying(ctx, lead, in, upper)

	case leads.StatusPendingApproval:
		return s.statusReply(ctx, lead, "status.pending_approval")
	case leads.StatusAwaitingDeposit:
		return s.statusReply(ctx, lead, "status.awaiting_deposit")
	case leads.StatusDepositPaid:
		return s.statusReply(ctx, lead, "status.deposit_paid")

	case leads.StatusBookingPending:
		return s.bookingPending(ctx, lead, in)

	case leads.StatusCollectingTimeWindows:
		return s.collectTimeWindow(ctx, lead, in)

	case leads.StatusTourConversionOffered:
		return s.tourOffer(ctx, lead, in)

	case leads.StatusNeedsArtistReply:
		return s.artistHold(ctx, lead, upper)

	case leads.StatusBooked:
		return s.statusReply(ctx, lead, "ack.booked")
	case leads.StatusRejected:
		return s.statusReply(ctx, lead, "ack.rejected")
	case leads.StatusNeedsFollowUp, leads.StatusNeedsManualFollowUp,
		leads.StatusWaitlisted, leads.StatusDepositExpired:
		return s.statusReply(ctx, lead, "ack.follow_up")

	default:
		// A status outside the known set means a bad migration or manual
		// edit; recover by resetting to NEW outside the transition table.
		if s.sysLog != nil {
			_ = s.sysLog.Record(ctx, events.LevelError, "status.unknown_recovered", &lead.ID, map[string]string{"status": string(lead.Status)})
		}
		if err := s.store.ForceStatus(ctx, lead.ID, leads.StatusNew); err != nil {
			return nil, err
		}
		refreshed, err := s.store.GetByID(ctx, lead.ID)
		if err != nil {
			return nil, err
		}
		return s.HandleInbound(ctx, refreshed, in)
	}
}

// restart moves a dormant lead back to NEW and replays the message through
// the fresh flow.
func (s *Service) restart(ctx context.Context, lead *leads.Lead, in Inbound) (*Result, error) {
	refreshed, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusNew, "")
	if err != nil {
		return s.transitionResult(err)
	}
	res, err := s.HandleInbound(ctx, refreshed, in)
	if err != nil {
		return nil, err
	}
	return &Result{Type: ResultRestarted + ":" + res.Type}, nil
}

func (s *Service) startQualifying(ctx context.Context, lead *leads.Lead) (*Result, error) {
	updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusQualifying, "")
	if err != nil {
		return s.transitionResult(err)
	}
	if err := s.store.SetLastClientMessageAt(ctx, updated.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	first, _ := questionAt(0)
	prompt := s.render(updated, first.CopyKey(), nil)
	body := s.render(updated, "welcome", map[string]string{"Question": prompt})
	s.send(ctx, updated, "qualifying_question", body)
	return &Result{Type: ResultQuestionSent}, nil
}

func (s *Service) statusReply(ctx context.Context, lead *leads.Lead, key string) (*Result, error) {
	body := s.render(lead, key, nil)
	s.send(ctx, lead, "status_reply", body)
	return &Result{Type: ResultStatusReply}, nil
}

func (s *Service) optOut(ctx context.Context, lead *leads.Lead) (*Result, error) {
	// The acknowledgment has to leave before the status flips, or the
	// arbiter will refuse it.
	body := s.render(lead, "optout.ack", nil)
	s.send(ctx, lead, "optout_ack", body)
	if _, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusOptOut, ""); err != nil {
		return s.transitionResult(err)
	}
	return &Result{Type: ResultOptedOut}, nil
}

func (s *Service) qualifying(ctx context.Context, lead *leads.Lead, in Inbound, upper string) (*Result, error) {
	q, ok := questionAt(lead.CurrentStep)
	if !ok {
		return s.completeQualification(ctx, lead)
	}
	prompt := s.render(lead, q.CopyKey(), nil)

	// Outside the 24h window nothing is saved; the interview re-opens via
	// the template re-ask.
	if lead.LastClientMessageAt != nil && s.clock.Now().Sub(*lead.LastClientMessageAt) >= inboundWindow {
		s.send(ctx, lead, "qualifying_question", prompt)
		return &Result{Type: ResultWindowClosed}, nil
	}

	if in.HasMedia && q.Key != "reference_images" && strings.TrimSpace(in.Text) == "" {
		body := s.render(lead, "guard.media", map[string]string{"Question": prompt})
		s.send(ctx, lead, "qualifying_question", body)
		return &Result{Type: ResultGuarded}, nil
	}

	if isHumanRequest(upper) {
		return s.handover(ctx, lead, "Client requested a human")
	}
	if strings.Contains(upper, "REFUND") {
		return s.handover(ctx, lead, "Client asked about a refund")
	}
	if strings.Contains(upper, "DELETE MY DATA") || strings.Contains(upper, "DELETE DATA") {
		return s.handover(ctx, lead, "Client requested data deletion")
	}

	if WrongFieldGuardHit(in.Text, q) {
		body := s.render(lead, "guard.wrong_field", map[string]string{"Question": prompt})
		s.send(ctx, lead, "qualifying_question", body)
		return &Result{Type: ResultGuarded}, nil
	}
	if BundleGuardHit(in.Text, q) {
		body := s.render(lead, "guard.bundle", map[string]string{"Question": prompt})
		s.send(ctx, lead, "qualifying_question", body)
		return &Result{Type: ResultGuarded}, nil
	}

	if reason := dynamicHandoverReason(in.Text, q); reason != "" {
		return s.handover(ctx, lead, reason)
	}

	value, parsed := s.parseAnswer(in, q)
	if !parsed {
		return s.repair(ctx, lead, q, prompt)
	}

	if _, err := s.store.SaveAnswer(ctx, lead.ID, q.Key, value); err != nil {
		return nil, err
	}
	if err := s.store.ResetParseFailure(ctx, lead.ID, q.Key); err != nil {
		return nil, err
	}
	if err := s.store.SetLastClientMessageAt(ctx, lead.ID, s.clock.Now()); err != nil {
		return nil, err
	}

	if q.Key == "complexity" && value == "3" {
		return s.handover(ctx, lead, "Complexity rated 3/3 needs artist review")
	}

	if lead.CurrentStep >= stepCount()-1 {
		return s.completeQualification(ctx, lead)
	}

	won, err := s.store.AdvanceStepIfAt(ctx, lead.ID, lead.CurrentStep)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent worker advanced first; it also sent the question.
		return &Result{Type: ResultLostRace}, nil
	}

	next, _ := questionAt(lead.CurrentStep + 1)
	nextPrompt := s.render(lead, next.CopyKey(), nil)
	body := nextPrompt
	if summary := s.confirmationSummary(ctx, lead, q.Key, nextPrompt); summary != "" {
		body = summary
	}
	s.send(ctx, lead, "qualifying_question", body)
	return &Result{Type: ResultQuestionSent}, nil
}

// parseAnswer validates one answer and returns its canonical stored form.
func (s *Service) parseAnswer(in Inbound, q Question) (string, bool) {
	switch q.Kind {
	case kindDimensions:
		w, h, ok := ParseDimensions(in.Text)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%.1fx%.1fcm", w, h), true
	case kindBudget:
		pence, ok := ParseBudget(in.Text)
		if !ok {
			return "", false
		}
		return strconv.FormatInt(pence, 10), true
	case kindLocation:
		city, country, ok := ParseLocation(in.Text)
		if !ok {
			return "", false
		}
		return city + ", " + country, true
	case kindComplexity:
		level, ok := ParseComplexity(in.Text)
		if !ok {
			return "", false
		}
		return strconv.Itoa(level), true
	case kindYesNo:
		value, ok := ParseYesNo(in.Text)
		if !ok {
			return "", false
		}
		if value {
			return "yes", true
		}
		return "no", true
	default:
		text := Normalize(in.Text)
		if text == "" {
			if q.Key == "reference_images" && in.HasMedia {
				return "media:" + in.MediaID, true
			}
			return "", false
		}
		return text, true
	}
}

// repair sends the ladder-selected reprompt, escalating to the artist on the
// third miss.
func (s *Service) repair(ctx context.Context, lead *leads.Lead, q Question, prompt string) (*Result, error) {
	count, err := s.store.IncrementParseFailure(ctx, lead.ID, q.Key)
	if err != nil {
		return nil, err
	}
	if count >= maxParseAttempts {
		return s.handover(ctx, lead, fmt.Sprintf("Unable to parse %s after %d attempts", q.Key, maxParseAttempts))
	}

	variant := "gentle"
	if count >= 2 {
		variant = "example"
	}
	params := map[string]string{"Question": prompt, "Max": strconv.Itoa(stepCount())}
	body, rerr := s.copy.Render(lead.ID, "repair."+q.Key+"."+variant, params)
	if rerr != nil {
		body = s.render(lead, "repair.generic."+variant, params)
	}
	s.send(ctx, lead, "qualifying_question", body)
	return &Result{Type: ResultRepairSent}, nil
}

// confirmationSummary fires once: when the just-saved field completes the
// dimensions+budget+location trio, the next question is prefixed with a
// playback of those answers.
func (s *Service) confirmationSummary(ctx context.Context, lead *leads.Lead, savedKey, nextPrompt string) string {
	switch savedKey {
	case "dimensions", "budget", "location":
	default:
		return ""
	}
	answers, err := s.store.LatestAnswers(ctx, lead.ID)
	if err != nil {
		s.logger.Warn("confirmation summary lookup failed", "error", err, "lead_id", lead.ID)
		return ""
	}
	dims, budget, location := answers["dimensions"], answers["budget"], answers["location"]
	if dims == "" || budget == "" || location == "" {
		return ""
	}
	display := budget
	if pence, err := strconv.ParseInt(budget, 10, 64); err == nil {
		display = fmt.Sprintf("£%d", pence/100)
	}
	return s.render(lead, "confirm.summary", map[string]string{
		"Dimensions": dims,
		"Budget":     display,
		"Location":   location,
		"Question":   nextPrompt,
	})
}

func (s *Service) completeQualification(ctx context.Context, lead *leads.Lead) (*Result, error) {
	answers, err := s.store.LatestAnswers(ctx, lead.ID)
	if err != nil {
		return nil, err
	}

	if answers["coverup"] == "yes" {
		return s.handover(ctx, lead, "Cover-up request needs artist review")
	}

	w, h, _ := ParseDimensions(answers["dimensions"])
	complexity, _ := strconv.Atoi(answers["complexity"])
	if complexity == 0 {
		complexity = 1
	}
	est := pricing.Compute(pricing.Input{
		WidthCM:    w,
		HeightCM:   h,
		Complexity: complexity,
		Coverup:    false,
		Placement:  answers["placement"],
	})

	city, country, _ := ParseLocation(answers["location"])
	region := pricing.RegionFor(country)
	minBudget := pricing.MinBudgetPence(region)
	budget, _ := strconv.ParseInt(answers["budget"], 10, 64)

	var days *float64
	if est.Category == pricing.CategoryXL {
		d := est.Days
		days = &d
	}
	below := budget < minBudget
	if err := s.store.SetEstimation(ctx, lead.ID, leads.Estimation{
		Category:             string(est.Category),
		Days:                 days,
		DepositPence:         est.DepositPence,
		LocationCity:         city,
		LocationCountry:      country,
		RegionBucket:         string(region),
		MinBudgetAmountPence: minBudget,
		BelowMinBudget:       below,
	}); err != nil {
		return nil, err
	}

	if below {
		updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusNeedsFollowUp, "")
		if err != nil {
			return s.transitionResult(err)
		}
		s.notify(ctx, "Lead below minimum budget",
			fmt.Sprintf("Lead %s budget %dp is under the %s minimum of %dp.", lead.ID, budget, region, minBudget))
		body := s.render(updated, "followup.below_budget", nil)
		s.send(ctx, updated, "follow_up", body)
		return &Result{Type: ResultBelowBudget}, nil
	}

	now := s.clock.Now()
	if !s.tour.Empty() && !s.tour.Covers(city, now) {
		if stop, found := s.tour.NearestUpcoming(now); found {
			if err := s.store.SetTourCityOffered(ctx, lead.ID, stop.City); err != nil {
				return nil, err
			}
			updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusTourConversionOffered, "")
			if err != nil {
				return s.transitionResult(err)
			}
			body := s.render(updated, "tour.offer", map[string]string{"City": city, "TourCity": stop.City})
			s.send(ctx, updated, "tour_offer", body)
			return &Result{Type: ResultTourOffered}, nil
		}
		updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusWaitlisted, "")
		if err != nil {
			return s.transitionResult(err)
		}
		body := s.render(updated, "tour.waitlist", map[string]string{"City": city})
		s.send(ctx, updated, "waitlist", body)
		return &Result{Type: ResultWaitlisted}, nil
	}

	updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusPendingApproval, "")
	if err != nil {
		return s.transitionResult(err)
	}
	s.notify(ctx, "Lead qualified: "+lead.Phone, s.operatorSummary(lead, answers, est, region, budget))
	body := s.render(updated, "complete.message", nil)
	s.send(ctx, updated, "qualifying_complete", body)
	return &Result{Type: ResultCompleted}, nil
}

func (s *Service) operatorSummary(lead *leads.Lead, answers map[string]string, est pricing.Estimate, region pricing.Region, budget int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead %s completed qualifying.\n", lead.ID)
	fmt.Fprintf(&b, "Category: %s  Deposit: £%d  Region: %s  Budget: £%d\n",
		est.Category, est.DepositPence/100, region, budget/100)
	for _, q := range script {
		if answer := answers[q.Key]; answer != "" {
			fmt.Fprintf(&b, "%s: %s\n", q.Key, answer)
		}
	}
	return b.String()
}

func (s *Service) bookingPending(ctx context.Context, lead *leads.Lead, in Inbound) (*Result, error) {
	if len(lead.SuggestedSlots) == 0 {
		return s.statusReply(ctx, lead, "status.deposit_paid")
	}
	idx, ok := ParseSlotSelection(in.Text, len(lead.SuggestedSlots))
	if !ok {
		count, err := s.store.IncrementParseFailure(ctx, lead.ID, "slot")
		if err != nil {
			return nil, err
		}
		if count >= maxParseAttempts {
			return s.handover(ctx, lead, fmt.Sprintf("Unable to parse slot after %d attempts", maxParseAttempts))
		}
		variant := "gentle"
		if count >= 2 {
			variant = "example"
		}
		body := s.render(lead, "repair.slot."+variant, map[string]string{"Max": strconv.Itoa(len(lead.SuggestedSlots))})
		s.send(ctx, lead, "slot_repair", body)
		return &Result{Type: ResultRepairSent}, nil
	}

	slot := lead.SuggestedSlots[idx-1]
	if err := s.store.SetSelectedSlot(ctx, lead.ID, slot); err != nil {
		return nil, err
	}
	if err := s.store.ResetParseFailure(ctx, lead.ID, "slot"); err != nil {
		return nil, err
	}
	display := slot.Start.Format("Mon 2 Jan 15:04")
	body := s.render(lead, "booking.slot_confirmed", map[string]string{"Slot": display})
	s.send(ctx, lead, "slot_confirmed", body)
	s.notify(ctx, "Slot selected: "+lead.Phone,
		fmt.Sprintf("Lead %s picked %s. Confirm the calendar invite.", lead.ID, display))
	return &Result{Type: ResultSlotSelected}, nil
}

func (s *Service) collectTimeWindow(ctx context.Context, lead *leads.Lead, in Inbound) (*Result, error) {
	text := Normalize(in.Text)
	if text == "" {
		return &Result{Type: ResultAcknowledged}, nil
	}
	if _, err := s.store.SaveAnswer(ctx, lead.ID, "preferred_time_windows", text); err != nil {
		return nil, err
	}
	if err := s.store.SetLastClientMessageAt(ctx, lead.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	count, err := s.store.CountAnswers(ctx, lead.ID, "preferred_time_windows")
	if err != nil {
		return nil, err
	}
	if count >= 2 {
		updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusNeedsArtistReply, "Collected preferred time windows")
		if err != nil {
			return s.transitionResult(err)
		}
		s.notifyHandoverOnce(ctx, updated, "Collected preferred time windows")
		body := s.render(updated, "collecting.enough", nil)
		s.send(ctx, updated, "collecting", body)
		return &Result{Type: ResultHandover}, nil
	}
	body := s.render(lead, "collecting.window_ack", nil)
	s.send(ctx, lead, "collecting", body)
	return &Result{Type: ResultWindowSaved}, nil
}

func (s *Service) tourOffer(ctx context.Context, lead *leads.Lead, in Inbound) (*Result, error) {
	tourCity := ""
	if lead.TourCityOffered != nil {
		tourCity = *lead.TourCityOffered
	}
	value, ok := ParseYesNo(in.Text)
	switch {
	case ok && value:
		if tourCity != "" {
			if err := s.store.AcceptTourCity(ctx, lead.ID, tourCity); err != nil {
				return nil, err
			}
		}
		updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusPendingApproval, "")
		if err != nil {
			return s.transitionResult(err)
		}
		s.notify(ctx, "Tour conversion accepted: "+lead.Phone,
			fmt.Sprintf("Lead %s accepted %s.", lead.ID, tourCity))
		body := s.render(updated, "tour.accepted", map[string]string{"TourCity": tourCity})
		s.send(ctx, updated, "tour_offer", body)
		return &Result{Type: ResultCompleted}, nil
	case ok && !value:
		updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusWaitlisted, "")
		if err != nil {
			return s.transitionResult(err)
		}
		city := ""
		if lead.LocationCity != nil {
			city = *lead.LocationCity
		}
		body := s.render(updated, "tour.declined", map[string]string{"City": city})
		s.send(ctx, updated, "waitlist", body)
		return &Result{Type: ResultWaitlisted}, nil
	default:
		body := s.render(lead, "tour.ask_again", map[string]string{"TourCity": tourCity})
		s.send(ctx, lead, "tour_offer", body)
		return &Result{Type: ResultRepairSent}, nil
	}
}

func (s *Service) artistHold(ctx context.Context, lead *leads.Lead, upper string) (*Result, error) {
	if strings.Trim(upper, " .!") == "CONTINUE" {
		updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusQualifying, "")
		if err != nil {
			return s.transitionResult(err)
		}
		q, ok := questionAt(updated.CurrentStep)
		if !ok {
			return s.completeQualification(ctx, updated)
		}
		prompt := s.render(updated, q.CopyKey(), nil)
		body := s.render(updated, "restart.ack", map[string]string{"Question": prompt})
		s.send(ctx, updated, "qualifying_question", body)
		return &Result{Type: ResultQuestionSent}, nil
	}

	now := s.clock.Now()
	if lead.HandoverLastHoldReplyAt != nil && now.Sub(*lead.HandoverLastHoldReplyAt) < holdReplyCadence {
		return &Result{Type: ResultHoldSuppress}, nil
	}
	body := s.render(lead, "hold.reply", nil)
	s.send(ctx, lead, "hold_reply", body)
	if err := s.store.TouchHoldReply(ctx, lead.ID, now); err != nil {
		return nil, err
	}
	return &Result{Type: ResultHold}, nil
}

// handover routes the conversation to the artist with a recorded reason,
// notifying the operator at most once per handover episode.
func (s *Service) handover(ctx context.Context, lead *leads.Lead, reason string) (*Result, error) {
	updated, err := s.store.Transition(ctx, lead.ID, lead.Status, leads.StatusNeedsArtistReply, reason)
	if err != nil {
		return s.transitionResult(err)
	}
	s.notifyHandoverOnce(ctx, updated, reason)
	body := s.render(updated, "handover.bridge", nil)
	s.send(ctx, updated, "handover", body)
	return &Result{Type: ResultHandover}, nil
}

func (s *Service) notifyHandoverOnce(ctx context.Context, lead *leads.Lead, reason string) {
	if lead.NeedsArtistReplyNotifiedAt != nil {
		return
	}
	s.notify(ctx, "Handover: "+lead.Phone, fmt.Sprintf("Lead %s needs you: %s", lead.ID, reason))
	if err := s.store.MarkHandoverNotified(ctx, lead.ID); err != nil {
		s.logger.Warn("failed to mark handover notified", "error", err, "lead_id", lead.ID)
	}
}

func (s *Service) notify(ctx context.Context, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOperator(ctx, subject, body); err != nil {
		s.logger.Error("operator notification failed", "error", err, "subject", subject)
	}
}

// transitionResult absorbs optimistic-concurrency losses: a lead whose
// status moved underneath us was handled by another worker.
func (s *Service) transitionResult(err error) (*Result, error) {
	var changed *leads.ChangedDuringTransitionError
	if errors.As(err, &changed) {
		return &Result{Type: ResultLostRace}, nil
	}
	return nil, err
}

func (s *Service) render(lead *leads.Lead, key string, params map[string]string) string {
	body, err := s.copy.Render(lead.ID, key, params)
	if err != nil {
		s.logger.Error("copy render failed", "error", err, "key", key, "lead_id", lead.ID)
		return ""
	}
	return body
}

func (s *Service) send(ctx context.Context, lead *leads.Lead, intent, body string) {
	if body == "" {
		return
	}
	out := messaging.Outbound{
		Intent:       intent,
		Body:         body,
		TemplateName: s.copy.WhatsAppTemplate(intent),
	}
	if out.TemplateName != "" {
		out.TemplateParams = map[string]string{"1": body}
	}
	if _, err := s.sender.Send(ctx, lead, out); err != nil {
		s.logger.Error("outbound send failed", "error", err, "lead_id", lead.ID, "intent", intent)
	}
}
