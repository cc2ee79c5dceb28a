package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	instagramHandleRe = regexp.MustCompile(`@[A-Za-z0-9._]{2,}`)
	currencySignalRe  = regexp.MustCompile(`(?i)[£$€]|\b(pounds?|quid|gbp|euros?|eur|dollars?|usd)\b`)
)

var styleKeywords = []string{
	"fine line", "fineline", "blackwork", "realism", "realistic", "traditional",
	"neo-traditional", "neotraditional", "watercolor", "watercolour",
	"geometric", "dotwork", "tribal", "japanese", "irezumi", "script",
	"lettering", "portrait", "illustrative", "minimalist", "sketch",
}

func hasStyleKeyword(lower string) bool {
	for _, kw := range styleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hasBudgetSignal fires on a currency marker, or without one on a
// confidently-parsed amount of at least £50.
func hasBudgetSignal(text string) bool {
	if currencySignalRe.MatchString(text) {
		return true
	}
	pence, ok := ParseBudget(text)
	return ok && pence >= minBudgetPence
}

// bundleSignals counts how many distinct answer kinds one message carries.
// At the reference/handle steps a style word next to an @handle is one
// coherent signal, not two.
func bundleSignals(text, currentKey string) int {
	lower := strings.ToLower(Normalize(text))
	signals := 0
	if _, _, ok := ParseDimensions(text); ok {
		signals++
	}
	if hasBudgetSignal(text) {
		signals++
	}
	style := hasStyleKeyword(lower)
	handle := instagramHandleRe.MatchString(text)
	if currentKey == "reference_images" || currentKey == "instagram_handle" {
		if style || handle {
			signals++
		}
	} else {
		if style {
			signals++
		}
		if handle {
			signals++
		}
	}
	return signals
}

// BundleGuardHit reports whether a message crams multiple answers together
// without being a valid answer to the current question. Hits get a
// one-at-a-time reprompt and no state advance.
func BundleGuardHit(text string, q Question) bool {
	if bundleSignals(text, q.Key) < 2 {
		return false
	}
	// A free-text question can't absorb a multi-answer dump; structured
	// questions let a parseable answer through.
	if q.Kind == kindFreeText {
		return true
	}
	return !validAnswer(text, q)
}

func validAnswer(text string, q Question) bool {
	switch q.Kind {
	case kindDimensions:
		_, _, ok := ParseDimensions(text)
		return ok
	case kindBudget:
		_, ok := ParseBudget(text)
		return ok
	case kindLocation:
		_, _, ok := ParseLocation(text)
		return ok
	case kindComplexity:
		_, ok := ParseComplexity(text)
		return ok
	case kindYesNo:
		_, ok := ParseYesNo(text)
		return ok
	default:
		return strings.TrimSpace(text) != ""
	}
}

// alphaRatio is the share of alphabetic runes among the non-space runes.
func alphaRatio(text string) float64 {
	letters, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

// WrongFieldGuardHit catches numeric answers sent to the open-text idea and
// placement questions: a budget-looking message below 30% letters or a
// dimensions-looking message below 50% letters is reprompted, not saved.
func WrongFieldGuardHit(text string, q Question) bool {
	if q.Key != "idea" && q.Key != "placement" {
		return false
	}
	ratio := alphaRatio(text)
	if hasBudgetSignal(text) && ratio < 0.30 {
		return true
	}
	if _, _, ok := ParseDimensions(text); ok && ratio < 0.50 {
		return true
	}
	return false
}
