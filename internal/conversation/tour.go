package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TourStop is one city the artist works from during a date range.
type TourStop struct {
	City    string    `json:"city"`
	Country string    `json:"country"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// TourSchedule is the artist's upcoming stops. A zero schedule covers
// nothing and offers nothing.
type TourSchedule struct {
	stops []TourStop
}

// NewTourSchedule builds a schedule from explicit stops.
func NewTourSchedule(stops []TourStop) *TourSchedule {
	return &TourSchedule{stops: stops}
}

// ParseTourSchedule decodes the configured JSON stop list.
func ParseTourSchedule(raw string) (*TourSchedule, error) {
	if strings.TrimSpace(raw) == "" {
		return &TourSchedule{}, nil
	}
	var stops []TourStop
	if err := json.Unmarshal([]byte(raw), &stops); err != nil {
		return nil, fmt.Errorf("conversation: decode tour schedule: %w", err)
	}
	return &TourSchedule{stops: stops}, nil
}

// Empty reports whether the schedule has no stops at all, which disables
// tour-conversion routing entirely.
func (s *TourSchedule) Empty() bool {
	return len(s.stops) == 0
}

// Covers reports whether a city has an upcoming stop.
func (s *TourSchedule) Covers(city string, now time.Time) bool {
	for _, stop := range s.stops {
		if strings.EqualFold(stop.City, city) && stop.EndAt.After(now) {
			return true
		}
	}
	return false
}

// NearestUpcoming returns the soonest stop that has not ended yet.
func (s *TourSchedule) NearestUpcoming(now time.Time) (TourStop, bool) {
	var best TourStop
	found := false
	for _, stop := range s.stops {
		if !stop.EndAt.After(now) {
			continue
		}
		if !found || stop.StartAt.Before(best.StartAt) {
			best = stop
			found = true
		}
	}
	return best, found
}
