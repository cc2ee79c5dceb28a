package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewParsesLevel(t *testing.T) {
	cases := []struct {
		level string
		debug bool
	}{
		{"debug", true},
		{"info", false},
		{"WARN", false},
		{"", false},
		{"verbose", false}, // unknown falls back to info
	}
	for _, tc := range cases {
		l := New(tc.level)
		if got := l.Enabled(context.Background(), slog.LevelDebug); got != tc.debug {
			t.Errorf("level %q: debug enabled = %v, want %v", tc.level, got, tc.debug)
		}
	}
}

func TestWithLeadStampsEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	l.WithLead("a1b2").Info("inbound job processed")

	out := buf.String()
	if !strings.Contains(out, `"lead_id":"a1b2"`) {
		t.Fatalf("record missing lead id: %s", out)
	}
	if !strings.Contains(out, "inbound job processed") {
		t.Fatalf("record missing message: %s", out)
	}
}
