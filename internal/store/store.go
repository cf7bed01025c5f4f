// Package store defines the game record store used by the engine. Every write is
// atomic per call and the round result writes are idempotent upserts keyed by
// (player result, round number), so a repeated round processing converges.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/victornm/wordroyale/internal/domain"
)

var ErrNotFound = errors.New("store: not found")

// NewGame is everything created when a game starts, written in one transaction.
// Players carry their initial round results. Queue entries listed are assigned the game.
type NewGame struct {
	Game          domain.Game
	Rounds        []domain.Round
	Players       []domain.PlayerResult
	QueueEntryIDs []string
}

// GameFilter selects games; zero fields match anything. Results are ordered by most
// recently started first.
type GameFilter struct {
	Status domain.GameStatus
	Mode   domain.GameMode
}

// PlayerFilter selects the player result of an identity; zero optional fields match
// anything. The result in the most recently started game wins.
type PlayerFilter struct {
	Identity   domain.PlayerIdentity
	GameID     string
	GameStatus domain.GameStatus
	GameMode   domain.GameMode
}

type Progress struct {
	RoundsCompleted int
	FinalRound      *int
}

// Completion ends a game. When WinnerID is set the winner is flagged in the same
// transaction so a winner never exists on an unfinished game.
type Completion struct {
	GameID      string
	EndedAt     time.Time
	WinnerID    string
	WinnerRound int
}

type Store interface {
	CreateGame(ctx context.Context, g NewGame) error
	GetGame(ctx context.Context, id string) (*domain.Game, error)
	ListGames(ctx context.Context, f GameFilter) ([]domain.Game, error)
	// AdvanceRound moves an in-progress game from round `from` to from+1. It reports
	// false when the game is no longer at `from`.
	AdvanceRound(ctx context.Context, gameID string, from int) (bool, error)
	// CompleteGame reports false when the game was not in progress.
	CompleteGame(ctx context.Context, c Completion) (bool, error)

	GetRound(ctx context.Context, gameID string, number int) (*domain.Round, error)
	// ScheduleRound sets a round's window once. It reports false when the round was
	// already scheduled.
	ScheduleRound(ctx context.Context, gameID string, number int, start time.Time, end *time.Time) (bool, error)
	// EndRound overrides a round's end, for operator force-ends only.
	EndRound(ctx context.Context, gameID string, number int, at time.Time) error

	// ListPlayerResults returns the game's players in join order, with their round results.
	ListPlayerResults(ctx context.Context, gameID string) ([]domain.PlayerResult, error)
	FindPlayerResult(ctx context.Context, f PlayerFilter) (*domain.PlayerResult, error)
	UpdateProgress(ctx context.Context, playerResultID string, p Progress) error
	// Eliminate upserts the round result with the elimination flag set. An existing
	// elimination time is kept.
	Eliminate(ctx context.Context, playerResultID string, round int, at time.Time) error
	// EnsureRoundResult creates an empty round result if none exists. It never
	// modifies an existing one.
	EnsureRoundResult(ctx context.Context, playerResultID string, round int) error

	// RecordAttempt appends the attempt and upserts the round result counters in one
	// transaction. The attempt's Seq is assigned by the store.
	RecordAttempt(ctx context.Context, a *domain.SubmissionAttempt) (*domain.RoundResult, error)
	LastAttempt(ctx context.Context, playerResultID string, round int) (*domain.SubmissionAttempt, error)
	// CorrectAttempts lists the correct attempts of a round across all players, ordered
	// by submission time then Seq.
	CorrectAttempts(ctx context.Context, gameID string, round int) ([]domain.SubmissionAttempt, error)

	// Enqueue adds a waiting entry. When the identity is already waiting the existing
	// entry is returned with false.
	Enqueue(ctx context.Context, e domain.QueueEntry) (*domain.QueueEntry, bool, error)
	FindWaiting(ctx context.Context, id domain.PlayerIdentity) (*domain.QueueEntry, error)
	// ListWaiting returns entries without a game, in join order.
	ListWaiting(ctx context.Context) ([]domain.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error
}
