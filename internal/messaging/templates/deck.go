// Package templates renders the broker's outbound copy. Each message key
// maps to one or more variants; variant selection is deterministic per lead
// so a client always sees a consistent voice.
package templates

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// Deck is the copy source injected into the orchestrator.
type Deck struct {
	variants map[string][]*template.Template
	waNames  map[string]string
}

// NewDeck builds the default deck. waTemplates maps an outbound intent to a
// pre-approved channel template name used when the 24h window is closed;
// intents absent from the map are blocked outside the window.
func NewDeck(waTemplates map[string]string) (*Deck, error) {
	d := &Deck{
		variants: make(map[string][]*template.Template),
		waNames:  waTemplates,
	}
	for key, texts := range defaultCopy {
		for i, text := range texts {
			tmpl, err := template.New(fmt.Sprintf("%s#%d", key, i)).Parse(text)
			if err != nil {
				return nil, fmt.Errorf("templates: parse %s variant %d: %w", key, i, err)
			}
			d.variants[key] = append(d.variants[key], tmpl)
		}
	}
	return d, nil
}

// Render produces the copy for a message key. The variant is picked by
// hashing the lead id with the key, so reprompts stay stable per lead.
func (d *Deck) Render(leadID uuid.UUID, key string, params map[string]string) (string, error) {
	variants, ok := d.variants[key]
	if !ok || len(variants) == 0 {
		return "", fmt.Errorf("templates: unknown message key %q", key)
	}
	h := fnv.New32a()
	_, _ = h.Write(leadID[:])
	_, _ = h.Write([]byte(key))
	tmpl := variants[h.Sum32()%uint32(len(variants))]

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("templates: render %s: %w", key, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// WhatsAppTemplate returns the registered pre-approved template name for an
// intent, or "" when none is configured.
func (d *Deck) WhatsAppTemplate(intent string) string {
	return d.waNames[intent]
}

// DefaultWhatsAppTemplates is the intent -> approved-template registry used
// when none is supplied by configuration.
func DefaultWhatsAppTemplates() map[string]string {
	return map[string]string{
		"qualifying_question":  "continue_qualifying",
		"reminder_qualifying":  "qualifying_reminder",
		"deposit_received":     "deposit_received",
		"deposit_link":         "deposit_link",
		"booking_reminder":     "booking_reminder",
	}
}

var defaultCopy = map[string][]string{
	"welcome": {
		"Hey! Thanks for reaching out about getting tattooed. I'll run you through a few quick questions so we can get you booked in. First up: {{.Question}}",
		"Hi! Great to hear from you. A few quick questions first so we can sort your booking. To start: {{.Question}}",
	},
	"question.idea":             {"What's the idea for your tattoo? A sentence or two is perfect."},
	"question.placement":        {"Where on your body would you like it?"},
	"question.dimensions":       {"Roughly how big are you thinking? e.g. 10x15cm or 6 inches."},
	"question.style":            {"Any particular style? (fine line, blackwork, realism, colour...)"},
	"question.color":            {"Black and grey, or colour?"},
	"question.complexity":       {"On a scale of 1 to 3, how detailed is the design? 1 = simple, 3 = very detailed."},
	"question.coverup":          {"Is this covering an existing tattoo or scar? (yes/no)"},
	"question.reference_images": {"Do you have any reference images? Send them over now if so."},
	"question.instagram_handle": {"What's your Instagram handle, in case we need to check references?"},
	"question.budget":           {"What budget did you have in mind? A rough number is fine, e.g. 500."},
	"question.location":         {"Which city and country are you based in? e.g. London UK."},
	"question.timing":           {"When were you hoping to get this done? Any rough timeframe works."},
	"question.age_confirm":      {"Last one: can you confirm you're 18 or over? (yes/no)"},

	"repair.dimensions.gentle":  {"No worries if sizing is tricky! Could you give me the size as width x height, like 10x15cm?"},
	"repair.dimensions.example": {"Size as numbers please, max 100cm a side. Example: 12x8cm or 5 inches."},
	"repair.budget.gentle":      {"Could you give me a rough number for budget? Just the figure is fine, like 500."},
	"repair.budget.example":     {"A number for budget please, minimum 50. Example: 500 or 1.5k."},
	"repair.location.gentle":    {"Which city and country? e.g. Manchester UK or Berlin Germany."},
	"repair.location.example":   {"City plus country please. Example: London UK. A specific place rather than 'anywhere' helps us route you."},
	"repair.slot.gentle":        {"Just reply with the number of the slot that works, e.g. 2."},
	"repair.slot.example":       {"A number between 1 and {{.Max}} please. Example: 1 for the first slot."},
	"repair.complexity.gentle":  {"Just a 1, 2 or 3 for detail level please."},
	"repair.complexity.example": {"Reply 1, 2 or 3. Example: 2 for medium detail."},
	"repair.coverup.gentle":     {"A quick yes or no: is this a cover-up?"},
	"repair.coverup.example":    {"Please reply yes or no. Example: no."},
	"repair.generic.gentle":     {"Sorry, I didn't quite catch that. {{.Question}}"},
	"repair.generic.example":    {"Let's try once more. {{.Question}}"},

	"handover.bridge": {
		"Thanks for bearing with me! I'm looping in the artist directly, they'll pick this up with you shortly.",
	},
	"guard.bundle": {"Thanks for all the detail! Let's take it one at a time. {{.Question}}"},
	"guard.media":  {"Got it! For this step I need: {{.Question}}"},
	"guard.wrong_field": {"I'll ask about that in a moment! For now: {{.Question}}"},

	"confirm.summary": {
		"Quick check before we continue: size {{.Dimensions}}, budget {{.Budget}}, based in {{.Location}}. {{.Question}}",
	},
	"complete.message": {
		"That's everything I need! The artist will review your request and you'll hear back shortly with next steps.",
	},

	"status.pending_approval": {"Your request is with the artist for review. You'll hear back soon!"},
	"status.awaiting_deposit": {"You're all set pending the deposit. Use the secure link we sent to lock in your booking."},
	"status.deposit_paid":     {"Deposit received! We're lining up dates for you now."},

	"booking.slots":          {"Here are the available slots:\n{{.Slots}}\nReply with the number that works best."},
	"booking.slot_confirmed": {"Perfect, you're pencilled in for {{.Slot}}. The artist will confirm the calendar invite shortly."},
	"collecting.window_ack":  {"Noted! Any other times that could work?"},
	"collecting.enough":      {"Great, that gives us plenty to work with. The artist will confirm a slot with you directly."},

	"tour.offer":     {"We're not in {{.City}} on this tour, but we'll be in {{.TourCity}} soon. Would that work for you? (yes/no)"},
	"tour.accepted":  {"Brilliant! I've switched your booking to {{.TourCity}}. The artist will review and confirm."},
	"tour.declined":  {"No problem. I've added you to the waitlist and we'll reach out when we're next near {{.City}}."},
	"tour.ask_again": {"Just a yes or no: would {{.TourCity}} work for you?"},
	"tour.waitlist":  {"We don't have a stop near {{.City}} right now, so I've added you to the waitlist. We'll be in touch!"},

	"hold.reply": {
		"The artist has your conversation and will reply personally soon. Reply CONTINUE if you'd like to carry on with the questions in the meantime.",
	},
	"optout.ack":     {"You've been opted out and won't hear from us again. Reply START if you change your mind."},
	"restart.ack":    {"Welcome back! Let's pick things up. {{.Question}}"},
	"ack.booked":     {"You're booked in! Check your confirmation for the details. See you soon."},
	"ack.rejected":   {"This request was closed. Feel free to reach out to the studio directly with anything else."},
	"ack.follow_up":  {"The artist has your details and will follow up with you personally."},
	"panic.reply":    {"Thanks for your message! We're briefly pausing automated replies; the studio will get back to you personally."},
	"pilot.deferred": {"Thanks for reaching out! Bookings open here very soon. We'll message you the moment we're live."},

	"deposit.link": {
		"To lock in your booking we take a non-refundable deposit of {{.Amount}}. Secure checkout: {{.URL}} (link valid 24h)",
	},
	"payment.confirmation": {
		"Deposit received! That's you locked in. Next we'll sort a date. {{.Next}}",
	},
	"reminder.qualifying.1": {
		"Just checking in! We were partway through your booking questions. {{.Question}}",
	},
	"reminder.qualifying.2": {
		"Still keen? Your booking request is saved. Reply any time to pick up where we left off.",
	},
	"reminder.booking.24": {"Quick nudge: we're holding dates for you. Reply when you're ready to pick a slot!"},
	"reminder.booking.72": {"Your deposit is in and dates are waiting. Reply to choose a slot before they fill."},

	"followup.below_budget": {
		"Thanks for the details! Your budget is a bit below our usual minimum for this piece. The artist will take a look and come back to you with options.",
	},
}
