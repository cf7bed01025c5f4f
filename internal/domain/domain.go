package domain

import (
	"time"

	"github.com/victornm/wordroyale/internal/rules"
)

type GameStatus string

const (
	GameStatusQueued     GameStatus = "QUEUED"
	GameStatusInProgress GameStatus = "IN_PROGRESS"
	GameStatusCompleted  GameStatus = "COMPLETED"
)

// CanTransitionTo reports whether a game may move from s to target.
func (s GameStatus) CanTransitionTo(target GameStatus) bool {
	switch s {
	case GameStatusQueued:
		return target == GameStatusInProgress
	case GameStatusInProgress:
		return target == GameStatusCompleted
	default:
		return false
	}
}

type GameMode string

const (
	GameModeMultiplayer GameMode = "MULTIPLAYER"
	GameModeDaily       GameMode = "DAILY"
)

// FinalRoundLength is the minimum anagram length of the untimed final round. Daily
// puzzles keep their natural progression.
func (m GameMode) FinalRoundLength() int {
	if m == GameModeMultiplayer {
		return rules.FinalRoundLength
	}

	return 0
}

// Game is one playthrough, either a scheduled battle royale or a daily puzzle.
type Game struct {
	ID           string
	Mode         GameMode
	Status       GameStatus
	CurrentRound int
	Progression  rules.Config
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}

// IsFinalRound reports whether the current round is the last one.
func (g Game) IsFinalRound() bool {
	return g.Progression.IsFinal(g.CurrentRound)
}

// Round is the puzzle of one round. StartedAt is nil until the round is scheduled and
// EndedAt is nil for the untimed final round.
type Round struct {
	GameID     string
	Number     int
	Anagram    string
	Solution   string
	TimeBudget time.Duration
	StartedAt  *time.Time
	EndedAt    *time.Time
}

// PlayerResult is one player's participation in a game.
type PlayerResult struct {
	ID              string
	GameID          string
	Identity        PlayerIdentity
	RoundsCompleted int
	IsWinner        bool
	FinalRound      *int
	CompletedAt     *time.Time
	CreatedAt       time.Time
	RoundResults    []RoundResult
}

// RoundResult returns the result of round n, or nil if none was recorded.
func (p PlayerResult) RoundResult(n int) *RoundResult {
	for i := range p.RoundResults {
		if p.RoundResults[i].RoundNumber == n {
			return &p.RoundResults[i]
		}
	}

	return nil
}

// EliminatedBefore reports whether the player was eliminated in a round earlier than n.
func (p PlayerResult) EliminatedBefore(n int) bool {
	for _, rr := range p.RoundResults {
		if rr.RoundNumber < n && rr.IsEliminated {
			return true
		}
	}

	return false
}

// EliminatedBy reports whether the player was eliminated in round n or earlier.
func (p PlayerResult) EliminatedBy(n int) bool {
	if rr := p.RoundResult(n); rr != nil && rr.IsEliminated {
		return true
	}

	return p.EliminatedBefore(n)
}

// ActiveIn reports whether the player still competes in round n.
func (p PlayerResult) ActiveIn(n int) bool {
	return !p.EliminatedBefore(n) && !p.IsWinner
}

// RoundResult is a player's outcome in one round. Once IsEliminated is set it stays set.
type RoundResult struct {
	PlayerResultID  string
	RoundNumber     int
	IsEliminated    bool
	TotalAttempts   int
	CorrectAttempts int
	FirstCorrectAt  *time.Time
	EliminatedAt    *time.Time
}

// Solved reports whether the player answered the round correctly.
func (r *RoundResult) Solved() bool {
	return r != nil && r.CorrectAttempts > 0
}

// SubmissionAttempt is an append-only record of one guess. Seq orders attempts that
// share a timestamp.
type SubmissionAttempt struct {
	ID              string
	Seq             int64
	PlayerResultID  string
	GameID          string
	RoundNumber     int
	Answer          string
	IsCorrect       bool
	SubmittedAt     time.Time
	SinceRoundStart time.Duration
}

// QueueEntry is a player waiting for the next scheduled multiplayer game.
type QueueEntry struct {
	ID       string
	Identity PlayerIdentity
	JoinedAt time.Time
	LeftAt   *time.Time
	GameID   *string
}

// Leaderboard lists players ordered by world rank score, best first.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank   int
	Player string
	Score  float64
}

// PlayerStats aggregates a player's finished games.
type PlayerStats struct {
	Player          string
	GamesPlayed     int
	Wins            int
	RoundsCompleted int
	AverageRounds   float64
	Score           float64
}
