// Package pricing derives the size category, day estimate, deposit amount,
// region bucket, and internal price range for a qualified lead.
package pricing

import "strings"

// Category is the derived size bucket used for deposit calculation.
type Category string

const (
	CategorySmall  Category = "SMALL"
	CategoryMedium Category = "MEDIUM"
	CategoryLarge  Category = "LARGE"
	CategoryXL     Category = "XL"
)

// Region is the pricing region bucket.
type Region string

const (
	RegionUK     Region = "UK"
	RegionEurope Region = "EUROPE"
	RegionROW    Region = "ROW"
)

// Placements that bump the category and day estimate one step.
var hardPlacements = []string{"ribs", "stomach", "side", "spine", "back", "sleeve", "thigh"}

// Estimate is the derived pricing output for a lead.
type Estimate struct {
	Category     Category
	Days         float64 // set only for XL, multiple of 0.5
	DepositPence int64
}

// Input carries the parsed answers pricing depends on.
type Input struct {
	WidthCM    float64
	HeightCM   float64
	Complexity int // 1..3
	Coverup    bool
	Placement  string
}

// Categorize derives the size category from area with coverup, complexity,
// and placement bumps.
func Categorize(in Input) Category {
	area := in.WidthCM * in.HeightCM
	var cat Category
	switch {
	case area < 50:
		cat = CategorySmall
	case area < 150:
		cat = CategoryMedium
	case area < 300:
		cat = CategoryLarge
	default:
		cat = CategoryXL
	}
	if in.Coverup {
		cat = bump(cat)
	}
	if in.Complexity >= 3 {
		cat = bump(cat)
	}
	if IsHardPlacement(in.Placement) {
		cat = bump(cat)
	}
	return cat
}

func bump(c Category) Category {
	switch c {
	case CategorySmall:
		return CategoryMedium
	case CategoryMedium:
		return CategoryLarge
	case CategoryLarge:
		return CategoryXL
	default:
		return CategoryXL
	}
}

// IsHardPlacement reports whether the placement answer names a bump placement.
func IsHardPlacement(placement string) bool {
	p := strings.ToLower(placement)
	for _, hp := range hardPlacements {
		if strings.Contains(p, hp) {
			return true
		}
	}
	return false
}

// EstimateDays returns the XL day estimate, a multiple of 0.5 clamped to
// [1.0, 4.0]. Callers must only use this for XL leads.
func EstimateDays(in Input) float64 {
	area := in.WidthCM * in.HeightCM
	var days float64
	switch {
	case area < 350:
		days = 1.5
	case area < 500:
		days = 2.0
	case area < 700:
		days = 2.5
	default:
		days = 3.0
	}
	if in.Coverup {
		days += 0.5
	}
	if in.Complexity >= 3 {
		days += 0.5
	}
	if IsHardPlacement(in.Placement) {
		days += 0.5
	}
	if days < 1.0 {
		days = 1.0
	}
	if days > 4.0 {
		days = 4.0
	}
	return days
}

// DepositPence returns the non-refundable deposit for a category. XL deposits
// scale with the day estimate.
func DepositPence(cat Category, days float64) int64 {
	switch cat {
	case CategorySmall, CategoryMedium:
		return 15000
	case CategoryLarge:
		return 20000
	default:
		return int64(20000 * days)
	}
}

// Compute derives the full pricing estimate for an input.
func Compute(in Input) Estimate {
	cat := Categorize(in)
	var days float64
	if cat == CategoryXL {
		days = EstimateDays(in)
	}
	return Estimate{
		Category:     cat,
		Days:         days,
		DepositPence: DepositPence(cat, days),
	}
}

// MinBudgetPence returns the minimum viable budget for a region.
func MinBudgetPence(r Region) int64 {
	switch r {
	case RegionUK:
		return 40000
	case RegionEurope:
		return 50000
	default:
		return 60000
	}
}

// HourlyRatePence is the internal per-hour rate for a region.
func HourlyRatePence(r Region) int64 {
	switch r {
	case RegionUK:
		return 13000
	case RegionEurope:
		return 14000
	default:
		return 15000
	}
}

// PriceRangePence returns the internal [min, max] quote band for a category
// in a region. Never shown to the client.
func PriceRangePence(cat Category, r Region) (int64, int64) {
	var minHours, maxHours float64
	switch cat {
	case CategorySmall:
		minHours, maxHours = 4, 5
	case CategoryMedium:
		minHours, maxHours = 5, 7
	case CategoryLarge:
		minHours, maxHours = 7.5, 10
	default:
		minHours, maxHours = 9.5, 11
	}
	rate := float64(HourlyRatePence(r))
	return int64(minHours * rate), int64(maxHours * rate)
}
