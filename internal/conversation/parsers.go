package conversation

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize prepares inbound text for parsing: NFC, invisible-character
// strip, whitespace collapse.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0': // NBSP becomes a regular space
			return ' '
		case '\u200b', '\u200c', '\u200d', '\ufeff': // zero-width characters vanish
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

const maxSideCM = 100

var (
	dimsPairRe   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*[x×*]\s*(\d+(?:[.,]\d+)?)\s*(cm|centimetres|centimeters|inches|inch|in)?\b`)
	dimsSingleRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(cm|centimetres|centimeters|inches|inch|in)?\b`)
)

// ParseDimensions extracts a width and height in centimetres. A single
// dimension is treated as a square; inch units convert at 2.54. Either side
// above 100cm is rejected.
func ParseDimensions(text string) (wCM, hCM float64, ok bool) {
	text = Normalize(text)
	if m := dimsPairRe.FindStringSubmatch(text); m != nil {
		w, err1 := parseDecimal(m[1])
		h, err2 := parseDecimal(m[2])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		w, h = applyUnit(w, m[3]), applyUnit(h, m[3])
		if w <= 0 || h <= 0 || w > maxSideCM || h > maxSideCM {
			return 0, 0, false
		}
		return w, h, true
	}
	if m := dimsSingleRe.FindStringSubmatch(text); m != nil {
		side, err := parseDecimal(m[1])
		if err != nil {
			return 0, 0, false
		}
		side = applyUnit(side, m[2])
		if side <= 0 || side > maxSideCM {
			return 0, 0, false
		}
		return side, side, true
	}
	return 0, 0, false
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func applyUnit(v float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "in", "inch", "inches":
		return v * 2.54
	}
	return v
}

// minBudgetPence guards against quantity mis-reads: anything parsing below
// £50 is treated as a failure rather than a real budget.
const minBudgetPence = 5000

var (
	currencyWordsRe = regexp.MustCompile(`(?i)\b(pounds?|quid|gbp|euros?|eur|dollars?|usd|sterling)\b`)
	budgetNumberRe  = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*(k\b)?`)
)

// ParseBudget extracts a budget in pence. Currency symbols and words are
// stripped, a trailing k multiplies by 1000, negatives and values below
// 5000 pence fail.
func ParseBudget(text string) (pence int64, ok bool) {
	text = Normalize(text)
	text = strings.NewReplacer("£", " ", "$", " ", "€", " ", ",", "").Replace(text)
	text = currencyWordsRe.ReplaceAllString(text, " ")

	m := budgetNumberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	if strings.EqualFold(m[2], "k") {
		value *= 1000
	}
	pence = int64(math.Round(value * 100))
	if pence < minBudgetPence {
		return 0, false
	}
	return pence, true
}

// flexibleAnswers are explicit location-parse failures: routing needs a real
// place, not a shrug.
var flexibleAnswers = map[string]bool{
	"flexible": true, "anywhere": true, "any": true, "wherever": true,
	"whereever": true, "whatever": true, "anything": true, "dont mind": true,
	"don't mind": true, "no preference": true, "either": true,
}

// countryAliases maps common spellings to the canonical country name.
var countryAliases = map[string]string{
	"uk": "United Kingdom", "u.k.": "United Kingdom", "u.k": "United Kingdom",
	"united kingdom": "United Kingdom", "england": "United Kingdom",
	"scotland": "United Kingdom", "wales": "United Kingdom",
	"britain": "United Kingdom", "great britain": "United Kingdom",
	"northern ireland": "United Kingdom",
	"usa": "United States", "us": "United States", "u.s.": "United States",
	"u.s.a.": "United States", "america": "United States",
	"united states": "United States",
	"uae": "United Arab Emirates", "united arab emirates": "United Arab Emirates",
	"germany": "Germany", "france": "France", "spain": "Spain",
	"italy": "Italy", "netherlands": "Netherlands", "holland": "Netherlands",
	"norway": "Norway", "sweden": "Sweden", "denmark": "Denmark",
	"finland": "Finland", "ireland": "Ireland", "portugal": "Portugal",
	"austria": "Austria", "switzerland": "Switzerland", "belgium": "Belgium",
	"poland": "Poland", "czech republic": "Czech Republic", "czechia": "Czech Republic",
	"greece": "Greece", "hungary": "Hungary", "romania": "Romania",
	"canada": "Canada", "australia": "Australia", "new zealand": "New Zealand",
	"japan": "Japan", "mexico": "Mexico", "brazil": "Brazil",
}

// cityCountry infers the country for a city-only answer.
var cityCountry = map[string]string{
	"london": "United Kingdom", "manchester": "United Kingdom",
	"birmingham": "United Kingdom", "glasgow": "United Kingdom",
	"edinburgh": "United Kingdom", "leeds": "United Kingdom",
	"bristol": "United Kingdom", "liverpool": "United Kingdom",
	"brighton": "United Kingdom", "cardiff": "United Kingdom",
	"belfast": "United Kingdom", "newcastle": "United Kingdom",
	"berlin": "Germany", "hamburg": "Germany", "munich": "Germany",
	"cologne": "Germany", "frankfurt": "Germany",
	"paris": "France", "lyon": "France", "marseille": "France",
	"madrid": "Spain", "barcelona": "Spain", "valencia": "Spain",
	"rome": "Italy", "milan": "Italy", "naples": "Italy",
	"amsterdam": "Netherlands", "rotterdam": "Netherlands",
	"oslo": "Norway", "stockholm": "Sweden", "gothenburg": "Sweden",
	"copenhagen": "Denmark", "helsinki": "Finland",
	"dublin": "Ireland", "cork": "Ireland",
	"lisbon": "Portugal", "porto": "Portugal",
	"vienna": "Austria", "zurich": "Switzerland", "geneva": "Switzerland",
	"brussels": "Belgium", "antwerp": "Belgium",
	"prague": "Czech Republic", "warsaw": "Poland", "krakow": "Poland",
	"athens": "Greece", "budapest": "Hungary", "bucharest": "Romania",
	"new york": "United States", "los angeles": "United States",
	"chicago": "United States", "miami": "United States",
	"austin": "United States", "seattle": "United States",
	"toronto": "Canada", "vancouver": "Canada", "montreal": "Canada",
	"sydney": "Australia", "melbourne": "Australia", "brisbane": "Australia",
	"auckland": "New Zealand", "tokyo": "Japan", "osaka": "Japan",
	"dubai": "United Arab Emirates",
}

// ParseLocation extracts "<city>, <country>". City-only answers infer the
// country from a static table; flexible answers fail outright.
func ParseLocation(text string) (city, country string, ok bool) {
	cleaned := strings.ToLower(Normalize(text))
	cleaned = strings.Trim(cleaned, " .!?")
	cleaned = strings.ReplaceAll(cleaned, ",", " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return "", "", false
	}
	padded := " " + cleaned + " "
	for phrase := range flexibleAnswers {
		if strings.Contains(padded, " "+phrase+" ") {
			return "", "", false
		}
	}

	words := strings.Fields(cleaned)
	// Longest country match first so "united kingdom" beats "kingdom".
	for take := min(3, len(words)); take >= 1; take-- {
		tail := strings.Join(words[len(words)-take:], " ")
		canonical, found := countryAliases[tail]
		if !found {
			continue
		}
		cityPart := strings.Join(words[:len(words)-take], " ")
		if cityPart == "" {
			// A bare country is ambiguous for routing.
			return "", "", false
		}
		return titleCase(cityPart), canonical, true
	}
	if inferred, found := cityCountry[cleaned]; found {
		return titleCase(cleaned), inferred, true
	}
	return "", "", false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var (
	slotDigitRe = regexp.MustCompile(`\b(\d{1,2})\b`)
	ordinals    = map[string]int{
		"first": 1, "1st": 1, "second": 2, "2nd": 2, "third": 3, "3rd": 3,
		"fourth": 4, "4th": 4, "fifth": 5, "5th": 5, "sixth": 6, "6th": 6,
		"last": -1,
	}
)

// ParseSlotSelection extracts a 1-based slot index from a digit or ordinal,
// rejecting anything outside 1..n.
func ParseSlotSelection(text string, n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	cleaned := strings.ToLower(Normalize(text))
	if m := slotDigitRe.FindStringSubmatch(cleaned); m != nil {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			return 0, false
		}
		return idx, true
	}
	for _, word := range strings.Fields(strings.Trim(cleaned, " .!?")) {
		if idx, found := ordinals[strings.Trim(word, ".,!?")]; found {
			if idx == -1 {
				return n, true
			}
			if idx >= 1 && idx <= n {
				return idx, true
			}
			return 0, false
		}
	}
	return 0, false
}

var (
	yesWords = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
		"sure": true, "ok": true, "okay": true, "correct": true,
		"confirm": true, "definitely": true, "absolutely": true, "aye": true,
	}
	noWords = map[string]bool{
		"no": true, "n": true, "nope": true, "nah": true, "negative": true,
	}
)

// ParseYesNo classifies an affirmative or negative answer.
func ParseYesNo(text string) (value, ok bool) {
	cleaned := strings.ToLower(Normalize(text))
	cleaned = strings.Trim(cleaned, " .!?,")
	if yesWords[cleaned] {
		return true, true
	}
	if noWords[cleaned] {
		return false, true
	}
	// Multi-word answers still count when they open with a clear signal.
	fields := strings.Fields(cleaned)
	if len(fields) > 0 {
		head := strings.Trim(fields[0], ".,!?")
		if yesWords[head] {
			return true, true
		}
		if noWords[head] {
			return false, true
		}
	}
	return false, false
}

var complexityWords = map[string]int{
	"simple": 1, "basic": 1, "minimal": 1,
	"medium": 2, "moderate": 2, "mid": 2,
	"detailed": 3, "complex": 3, "intricate": 3, "very": 3,
}

// ParseComplexity extracts a detail level 1..3 from a digit or keyword.
func ParseComplexity(text string) (int, bool) {
	cleaned := strings.ToLower(Normalize(text))
	if m := slotDigitRe.FindStringSubmatch(cleaned); m != nil {
		level, err := strconv.Atoi(m[1])
		if err != nil || level < 1 || level > 3 {
			return 0, false
		}
		return level, true
	}
	for _, word := range strings.Fields(cleaned) {
		if level, found := complexityWords[strings.Trim(word, ".,!?")]; found {
			return level, true
		}
	}
	return 0, false
}
