// Package rules holds the deterministic parts of the game: per-round anagram length
// and time budget, the fixed timing constants, and the multiplayer schedule.
package rules

import (
	"time"
	_ "time/tzdata"
)

const (
	// CountdownInterval separates the end of one round from the start of the next.
	CountdownInterval = 15 * time.Second
	// SubmissionInterval is the minimum gap between two submissions of a player in a round.
	SubmissionInterval = time.Second
	// MinRoundTime is the floor of the per-round time budget.
	MinRoundTime = 15 * time.Second
	// FinalRoundLength is the anagram length of the untimed final round.
	FinalRoundLength = 9
	// QueueOpensBefore is how long before a scheduled game the queue opens.
	QueueOpensBefore = 15 * time.Minute
)

// Config is the progression of a game. It is persisted on the game so a running game
// is not affected by configuration changes.
type Config struct {
	InitialTimeSeconds     int
	TimeDecreasePerRound   int
	InitialAnagramLength   int
	LengthIncreasePerRound int
	MaxRounds              int
}

// Multiplayer is the battle royale progression: 5 letters in 60s, then one more
// letter and 5 seconds less per round.
var Multiplayer = Config{
	InitialTimeSeconds:     60,
	TimeDecreasePerRound:   5,
	InitialAnagramLength:   5,
	LengthIncreasePerRound: 1,
	MaxRounds:              4,
}

// Daily is the single-player daily puzzle progression.
var Daily = Config{
	InitialTimeSeconds:     180,
	TimeDecreasePerRound:   0,
	InitialAnagramLength:   5,
	LengthIncreasePerRound: 1,
	MaxRounds:              3,
}

// Round is the configuration of one round.
type Round struct {
	Length int
	Time   time.Duration
}

// ForRound maps a 1-based round number to its anagram length and time budget.
func (c Config) ForRound(round int) Round {
	length := c.InitialAnagramLength + (round-1)*c.LengthIncreasePerRound
	t := time.Duration(c.InitialTimeSeconds-(round-1)*c.TimeDecreasePerRound) * time.Second

	return Round{
		Length: length,
		Time:   max(MinRoundTime, t),
	}
}

// IsFinal reports whether round is the last round of the game.
func (c Config) IsFinal(round int) bool {
	return round >= c.MaxRounds
}

// Plan is the content plan of a round decided before the game starts.
type Plan struct {
	Number int
	Length int
	// Time is zero for the untimed final round.
	Time time.Duration
}

// Plan lays out every round of a game. Lengths are capped at maxLength; the final
// round always asks for finalLength letters and has no time limit.
func (c Config) Plan(finalLength, maxLength int) []Plan {
	plans := make([]Plan, 0, c.MaxRounds)
	for n := 1; n <= c.MaxRounds; n++ {
		r := c.ForRound(n)
		p := Plan{Number: n, Length: r.Length, Time: r.Time}
		if c.IsFinal(n) {
			p.Length, p.Time = max(finalLength, r.Length), 0
		}
		p.Length = min(p.Length, maxLength)
		plans = append(plans, p)
	}

	return plans
}

// NextRoundWindow computes when the round after a boundary starts and ends. The end
// is nil when the next round is final.
func NextRoundWindow(boundary time.Time, next Round, final bool) (time.Time, *time.Time) {
	start := boundary.Add(CountdownInterval)
	if final {
		return start, nil
	}

	end := start.Add(next.Time)
	return start, &end
}

// WithinRateLimit reports whether a submission at now is allowed after the previous one.
func WithinRateLimit(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}

	return now.Sub(*last) >= SubmissionInterval
}

// Deadline reports whether now is at or past end. A nil end never passes.
func Deadline(end *time.Time, now time.Time) bool {
	return end != nil && !now.Before(*end)
}
