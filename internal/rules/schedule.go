package rules

import (
	"fmt"
	"time"
)

// Schedule places multiplayer games at fixed local hours.
type Schedule struct {
	Location *time.Location
	Hours    []int
}

// DefaultSchedule runs a morning and an evening game, UK time.
func DefaultSchedule() (Schedule, error) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return Schedule{}, fmt.Errorf("load location: %w", err)
	}

	return Schedule{Location: loc, Hours: []int{9, 18}}, nil
}

// Next returns the first scheduled game strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	local := now.In(s.Location)
	for day := 0; day < 2; day++ {
		d := local.AddDate(0, 0, day)
		for _, h := range s.Hours {
			t := time.Date(d.Year(), d.Month(), d.Day(), h, 0, 0, 0, s.Location)
			if t.After(now) {
				return t
			}
		}
	}

	// Only reachable without hours configured.
	return local.AddDate(0, 0, 1)
}

// QueueOpensAt returns when the queue opens for a game scheduled at t.
func QueueOpensAt(t time.Time) time.Time {
	return t.Add(-QueueOpensBefore)
}
