package pricing

import "testing"

func TestCategorizeAreaBands(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Category
	}{
		{"small", Input{WidthCM: 7, HeightCM: 7}, CategorySmall},
		{"medium", Input{WidthCM: 10, HeightCM: 12}, CategoryMedium},
		{"large", Input{WidthCM: 15, HeightCM: 15}, CategoryLarge},
		{"xl", Input{WidthCM: 20, HeightCM: 20}, CategoryXL},
		{"boundary 50 is medium", Input{WidthCM: 5, HeightCM: 10}, CategoryMedium},
		{"boundary 150 is large", Input{WidthCM: 10, HeightCM: 15}, CategoryLarge},
		{"boundary 300 is xl", Input{WidthCM: 15, HeightCM: 20}, CategoryXL},
	}
	for _, tc := range cases {
		if got := Categorize(tc.in); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestCategorizeBumps(t *testing.T) {
	base := Input{WidthCM: 7, HeightCM: 7} // SMALL
	if got := Categorize(Input{WidthCM: 7, HeightCM: 7, Coverup: true}); got != CategoryMedium {
		t.Fatalf("coverup bump: got %s", got)
	}
	if got := Categorize(Input{WidthCM: 7, HeightCM: 7, Complexity: 3}); got != CategoryMedium {
		t.Fatalf("complexity bump: got %s", got)
	}
	if got := Categorize(Input{WidthCM: 7, HeightCM: 7, Placement: "ribs"}); got != CategoryMedium {
		t.Fatalf("placement bump: got %s", got)
	}
	// Stacked bumps: SMALL -> LARGE.
	stacked := base
	stacked.Coverup = true
	stacked.Complexity = 3
	if got := Categorize(stacked); got != CategoryLarge {
		t.Fatalf("stacked bumps: got %s", got)
	}
	// XL stays XL.
	if got := Categorize(Input{WidthCM: 20, HeightCM: 20, Coverup: true}); got != CategoryXL {
		t.Fatalf("xl bump: got %s", got)
	}
}

func TestEstimateDays(t *testing.T) {
	cases := []struct {
		in   Input
		want float64
	}{
		{Input{WidthCM: 18, HeightCM: 18}, 1.5}, // 324 < 350
		{Input{WidthCM: 20, HeightCM: 20}, 2.0}, // 400 < 500
		{Input{WidthCM: 25, HeightCM: 25}, 2.5}, // 625 < 700
		{Input{WidthCM: 30, HeightCM: 30}, 3.0},
		{Input{WidthCM: 30, HeightCM: 30, Coverup: true, Complexity: 3, Placement: "spine"}, 4.0}, // clamp 4.5 -> 4.0
	}
	for i, tc := range cases {
		if got := EstimateDays(tc.in); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestDepositPence(t *testing.T) {
	if got := DepositPence(CategorySmall, 0); got != 15000 {
		t.Fatalf("small: %d", got)
	}
	if got := DepositPence(CategoryMedium, 0); got != 15000 {
		t.Fatalf("medium: %d", got)
	}
	if got := DepositPence(CategoryLarge, 0); got != 20000 {
		t.Fatalf("large: %d", got)
	}
	if got := DepositPence(CategoryXL, 2.5); got != 50000 {
		t.Fatalf("xl 2.5 days: %d", got)
	}
}

func TestRegionFor(t *testing.T) {
	cases := map[string]Region{
		"United Kingdom": RegionUK,
		"uk":             RegionUK,
		"England":        RegionUK,
		"Germany":        RegionEurope,
		"france":         RegionEurope,
		"United States":  RegionROW,
		"Japan":          RegionROW,
		"":               RegionROW,
	}
	for country, want := range cases {
		if got := RegionFor(country); got != want {
			t.Errorf("%q: got %s, want %s", country, got, want)
		}
	}
}

func TestMinBudgetAndRates(t *testing.T) {
	if MinBudgetPence(RegionUK) != 40000 || MinBudgetPence(RegionEurope) != 50000 || MinBudgetPence(RegionROW) != 60000 {
		t.Fatal("min budget table mismatch")
	}
	if HourlyRatePence(RegionUK) != 13000 || HourlyRatePence(RegionEurope) != 14000 || HourlyRatePence(RegionROW) != 15000 {
		t.Fatal("hourly rate table mismatch")
	}
	lo, hi := PriceRangePence(CategoryLarge, RegionUK)
	if lo != 97500 || hi != 130000 {
		t.Fatalf("large UK range: %d..%d", lo, hi)
	}
	lo, hi = PriceRangePence(CategoryXL, RegionROW)
	if lo != 142500 || hi != 165000 {
		t.Fatalf("xl ROW range: %d..%d", lo, hi)
	}
}
