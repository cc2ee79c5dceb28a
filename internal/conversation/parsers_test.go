package conversation

import (
	"math"
	"testing"
)

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		w, h  float64
		ok    bool
	}{
		{"pair with unit", "10x15cm", 10, 15, true},
		{"pair with times sign", "10 × 15 cm", 10, 15, true},
		{"pair no unit defaults cm", "12x8", 12, 8, true},
		{"single becomes square", "20cm", 20, 20, true},
		{"inches convert", "6 inches", 15.24, 15.24, true},
		{"inch pair converts", "4x6 in", 10.16, 15.24, true},
		{"decimal comma", "7,5x10cm", 7.5, 10, true},
		{"side over 100cm rejected", "120x30cm", 0, 0, false},
		{"single over 100cm rejected", "150cm", 0, 0, false},
		{"inches over limit rejected", "45 inches", 0, 0, false},
		{"no numbers", "pretty big I guess", 0, 0, false},
		{"nbsp separated", "10\u00a0x\u00a015cm", 10, 15, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, ok := ParseDimensions(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if math.Abs(w-tt.w) > 0.01 || math.Abs(h-tt.h) > 0.01 {
				t.Fatalf("got %.2fx%.2f, want %.2fx%.2f", w, h, tt.w, tt.h)
			}
		})
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pence int64
		ok    bool
	}{
		{"plain number", "500", 50000, true},
		{"pound sign", "£500", 50000, true},
		{"currency word", "500 pounds", 50000, true},
		{"thousands comma", "1,500", 150000, true},
		{"k suffix", "1.5k", 150000, true},
		{"capital K", "2K", 200000, true},
		{"boundary fifty", "£50", 5000, true},
		{"just under fifty fails", "£49", 0, false},
		{"negative fails", "-500", 0, false},
		{"zero fails", "0", 0, false},
		{"no number", "whatever it takes", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pence, ok := ParseBudget(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && pence != tt.pence {
				t.Fatalf("pence = %d, want %d", pence, tt.pence)
			}
		})
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		city    string
		country string
		ok      bool
	}{
		{"city country", "London UK", "London", "United Kingdom", true},
		{"comma separated", "Manchester, England", "Manchester", "United Kingdom", true},
		{"full country name", "Berlin Germany", "Berlin", "Germany", true},
		{"two word country", "Austin United States", "Austin", "United States", true},
		{"city only inferred", "oslo", "Oslo", "Norway", true},
		{"two word city inferred", "new york", "New York", "United States", true},
		{"flexible fails", "anywhere works", "", "", false},
		{"any fails", "any", "", "", false},
		{"bare country fails", "germany", "", "", false},
		{"unknown city fails", "springfield", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			city, country, ok := ParseLocation(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if city != tt.city || country != tt.country {
				t.Fatalf("got %q/%q, want %q/%q", city, country, tt.city, tt.country)
			}
		})
	}
}

func TestParseSlotSelection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		idx   int
		ok    bool
	}{
		{"bare digit", "2", 5, 2, true},
		{"digit in phrase", "slot 3 please", 5, 3, true},
		{"ordinal word", "the first one", 5, 1, true},
		{"ordinal suffix", "2nd", 5, 2, true},
		{"last picks n", "the last one", 4, 4, true},
		{"out of range", "10", 8, 0, false},
		{"zero", "0", 5, 0, false},
		{"no selection", "sounds good", 5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := ParseSlotSelection(tt.input, tt.n)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && idx != tt.idx {
				t.Fatalf("idx = %d, want %d", idx, tt.idx)
			}
		})
	}
}

func TestParseYesNo(t *testing.T) {
	yes := []string{"yes", "Yes!", "yeah", "yep", "sure", "ok", "yes please"}
	for _, input := range yes {
		if v, ok := ParseYesNo(input); !ok || !v {
			t.Errorf("%q should parse as yes", input)
		}
	}
	no := []string{"no", "No.", "nope", "nah", "no thanks"}
	for _, input := range no {
		if v, ok := ParseYesNo(input); !ok || v {
			t.Errorf("%q should parse as no", input)
		}
	}
	if _, ok := ParseYesNo("maybe later"); ok {
		t.Error("ambiguous answer should not parse")
	}
}

func TestParseComplexity(t *testing.T) {
	tests := []struct {
		input string
		level int
		ok    bool
	}{
		{"2", 2, true},
		{"probably a 3", 3, true},
		{"simple", 1, true},
		{"very detailed", 3, true},
		{"5", 0, false},
		{"dunno", 0, false},
	}
	for _, tt := range tests {
		level, ok := ParseComplexity(tt.input)
		if ok != tt.ok || (ok && level != tt.level) {
			t.Errorf("ParseComplexity(%q) = %d,%v want %d,%v", tt.input, level, ok, tt.level, tt.ok)
		}
	}
}

func TestNormalizeStripsInvisibles(t *testing.T) {
	got := Normalize("10\u200bx\u200b15  cm\u00a0please")
	if got != "10x15 cm please" {
		t.Fatalf("got %q", got)
	}
}
