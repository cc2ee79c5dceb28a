package conversation

import (
	"testing"
	"time"
)

func TestParseTourSchedule(t *testing.T) {
	raw := `[{"city":"Berlin","country":"Germany","start_at":"2026-06-01T00:00:00Z","end_at":"2026-06-14T00:00:00Z"}]`
	sched, err := ParseTourSchedule(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sched.Empty() {
		t.Fatal("schedule should have a stop")
	}
	if _, err := ParseTourSchedule("{broken"); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	empty, err := ParseTourSchedule("")
	if err != nil || !empty.Empty() {
		t.Fatalf("blank config should give an empty schedule, err=%v", err)
	}
}

func TestTourScheduleCovers(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sched := NewTourSchedule([]TourStop{
		{City: "London", StartAt: now.AddDate(0, 1, 0), EndAt: now.AddDate(0, 1, 7)},
		{City: "Berlin", StartAt: now.AddDate(0, 0, 14), EndAt: now.AddDate(0, 0, 21)},
		{City: "Oslo", StartAt: now.AddDate(0, -2, 0), EndAt: now.AddDate(0, -2, 7)},
	})

	if !sched.Covers("london", now) {
		t.Fatal("city match should be case-insensitive")
	}
	if sched.Covers("Oslo", now) {
		t.Fatal("a finished stop no longer covers its city")
	}
	stop, found := sched.NearestUpcoming(now)
	if !found || stop.City != "Berlin" {
		t.Fatalf("nearest upcoming = %+v, want Berlin", stop)
	}
}
