// Package submission accepts guesses for the current round of a player's game.
package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/progression"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
	"github.com/victornm/wordroyale/internal/telemetry"
	"github.com/victornm/wordroyale/internal/words"
)

// Dictionary checks a guess against a round's letters.
type Dictionary interface {
	Validate(anagram, guess string) bool
}

// RoundCloser closes the current round of a game.
type RoundCloser interface {
	ProcessRoundEnd(ctx context.Context, gameID string) (*progression.Result, error)
}

type Config struct {
	Store       store.Store
	Words       Dictionary
	Progression RoundCloser
	Now         func() time.Time
	// StrictSolution accepts only the stored solution instead of any dictionary word
	// made of the round's letters.
	StrictSolution bool
}

type Service struct {
	store  store.Store
	words  Dictionary
	rounds RoundCloser
	now    func() time.Time
	strict bool
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:  c.Store,
		words:  c.Words,
		rounds: c.Progression,
		now:    now,
		strict: c.StrictSolution,
	}
}

type SubmitRequest struct {
	Identity domain.PlayerIdentity
	// GameID optionally pins the game; by default the player's most recent game in progress.
	GameID string
	Guess  string
}

type SubmitResponse struct {
	Correct         bool
	GameID          string
	RoundNumber     int
	FinalRound      bool
	RoundComplete   bool
	GameComplete    bool
	NextRound       *int
	Winner          *string
	TotalAttempts   int
	CorrectAttempts int
	// Solution is set only for a correct guess.
	Solution string
}

// Submit records one guess for the player's current round. A correct answer that
// decides the round (the earliest in the final round, or any in a single-player game)
// closes the round immediately.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	resp, err := s.submit(ctx, req)
	if err != nil {
		e := errors.Convert(err)
		result := string(e.Reason)
		if result == "" {
			result = "error"
		}
		telemetry.Submissions.WithLabelValues(result).Inc()
		return nil, err
	}

	if resp.Correct {
		telemetry.Submissions.WithLabelValues("correct").Inc()
	} else {
		telemetry.Submissions.WithLabelValues("incorrect").Inc()
	}

	return resp, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.Identity == nil {
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("player identity is required"))
	}

	p, err := s.store.FindPlayerResult(ctx, store.PlayerFilter{
		Identity:   req.Identity,
		GameID:     req.GameID,
		GameStatus: domain.GameStatusInProgress,
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrNotInActiveGame.With(errors.WithMessagef("no game in progress for %s", req.Identity.Key()))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("find player: %w", err))
	}

	g, err := s.store.GetGame(ctx, p.GameID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrGameNotFound.With(errors.WithMessagef("game not found: %s", p.GameID))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load game: %w", err))
	}
	if g.Status != domain.GameStatusInProgress {
		return nil, errors.ErrGameNotInProgress.With(errors.WithMessagef("game %s is %s", g.ID, g.Status))
	}

	current := g.CurrentRound
	if p.EliminatedBy(current) {
		return nil, errors.ErrPlayerEliminated.With(errors.WithMessagef("player %s is eliminated", req.Identity.Key()))
	}

	round, err := s.store.GetRound(ctx, g.ID, current)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrRoundNotFound.With(errors.WithMessagef("round not found: game=%s round=%d", g.ID, current))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load round: %w", err))
	}

	now := s.now()
	final := g.IsFinalRound()
	if round.StartedAt == nil || now.Before(*round.StartedAt) {
		return nil, errors.ErrRoundNotStarted.With(errors.WithMessagef("round %d has not started", current))
	}
	if !final && rules.Deadline(round.EndedAt, now) {
		return nil, errors.ErrRoundEnded.With(errors.WithMessagef("round %d has ended", current))
	}

	last, err := s.store.LastAttempt(ctx, p.ID, current)
	if err != nil && !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Internal(fmt.Errorf("load last attempt: %w", err))
	}
	if last != nil && !rules.WithinRateLimit(&last.SubmittedAt, now) {
		return nil, errors.ErrRateLimited.With(errors.WithMessagef("one guess per %s", rules.SubmissionInterval))
	}

	guess := words.Normalize(req.Guess)
	if !words.WellFormed(guess) {
		return nil, errors.ErrInvalidGuess.With(errors.WithMessagef("guess must be letters only"))
	}

	correct := s.words.Validate(round.Anagram, guess)
	if s.strict {
		correct = correct && guess == round.Solution
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate attempt ID: %w", err))
	}

	rr, err := s.store.RecordAttempt(ctx, &domain.SubmissionAttempt{
		ID:              id.String(),
		PlayerResultID:  p.ID,
		GameID:          g.ID,
		RoundNumber:     current,
		Answer:          guess,
		IsCorrect:       correct,
		SubmittedAt:     now,
		SinceRoundStart: now.Sub(*round.StartedAt),
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("record attempt: %w", err))
	}

	resp := &SubmitResponse{
		Correct:         correct,
		GameID:          g.ID,
		RoundNumber:     current,
		FinalRound:      final,
		TotalAttempts:   rr.TotalAttempts,
		CorrectAttempts: rr.CorrectAttempts,
	}
	if !correct {
		return resp, nil
	}
	resp.Solution = round.Solution

	decides, err := s.decidesRound(ctx, g, p)
	if err != nil {
		return nil, err
	}
	if !decides {
		return resp, nil
	}

	res, err := s.rounds.ProcessRoundEnd(ctx, g.ID)
	if err != nil {
		// The attempt is persisted; the next poll closes the round.
		slog.ErrorContext(ctx, "submission: close round failed", "game_id", g.ID, "round", current, "error", err)
		return resp, nil
	}
	if res == nil {
		return resp, nil
	}

	resp.RoundComplete = true
	resp.GameComplete = res.Status == domain.GameStatusCompleted
	resp.NextRound = res.NextRound
	if res.Winner != nil {
		resp.Winner = &res.Winner.Player
	}

	return resp, nil
}

// decidesRound reports whether a correct answer of p closes the current round: in the
// final round when it is the earliest correct attempt on record, otherwise only when
// p plays alone.
func (s *Service) decidesRound(ctx context.Context, g *domain.Game, p *domain.PlayerResult) (bool, error) {
	if g.IsFinalRound() {
		attempts, err := s.store.CorrectAttempts(ctx, g.ID, g.CurrentRound)
		if err != nil {
			return false, errors.Internal(fmt.Errorf("load correct attempts: %w", err))
		}

		return len(attempts) > 0 && attempts[0].PlayerResultID == p.ID, nil
	}

	players, err := s.store.ListPlayerResults(ctx, g.ID)
	if err != nil {
		return false, errors.Internal(fmt.Errorf("load players: %w", err))
	}

	return len(players) == 1, nil
}
