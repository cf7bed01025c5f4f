// Package progression advances games from one round to the next. It holds no timers:
// every transition is driven by a trigger (the poller, an operator, or a submission)
// calling into idempotent operations that read the persisted state.
package progression

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/event"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
	"github.com/victornm/wordroyale/internal/telemetry"
)

const sweepConcurrency = 8

// Locker grants per-game leases. A nil Locker disables leasing.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error)
}

type Config struct {
	Store    store.Store
	EventBus event.Publisher
	Locker   Locker
	Now      func() time.Time
}

type Service struct {
	store  store.Store
	eb     event.Publisher
	locker Locker
	now    func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:  c.Store,
		eb:     c.EventBus,
		locker: c.Locker,
		now:    now,
	}
}

type Winner struct {
	PlayerResultID string
	Player         string
}

// Result describes one processed round boundary. Applied is false when a concurrent
// run made the same transition first; the described state is still the persisted one.
type Result struct {
	GameID           string
	PreviousRound    int
	NextRound        *int
	EliminatedCount  int
	RemainingPlayers int
	Winner           *Winner
	Status           domain.GameStatus
	Applied          bool
}

// CheckRoundEnd reports whether the current round of an in-progress game is over. A
// timed round is over at its end timestamp; the final round only once a winner exists.
func (s *Service) CheckRoundEnd(ctx context.Context, gameID string) bool {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "progression: load game failed", "game_id", gameID, "error", err)
		}
		return false
	}
	if g.Status != domain.GameStatusInProgress {
		return false
	}

	if g.IsFinalRound() {
		players, err := s.store.ListPlayerResults(ctx, gameID)
		if err != nil {
			slog.ErrorContext(ctx, "progression: load players failed", "game_id", gameID, "error", err)
			return false
		}

		return slices.ContainsFunc(players, func(p domain.PlayerResult) bool { return p.IsWinner })
	}

	r, err := s.store.GetRound(ctx, gameID, g.CurrentRound)
	if err != nil {
		slog.ErrorContext(ctx, "progression: load round failed", "game_id", gameID, "round", g.CurrentRound, "error", err)
		return false
	}

	return rules.Deadline(r.EndedAt, s.now())
}

// ProcessRoundEnd applies the transition out of the game's current round: eliminate
// the players who did not solve it, then either advance, or complete the game with
// its winner. It returns nil while the current round has not started yet.
func (s *Service) ProcessRoundEnd(ctx context.Context, gameID string) (*Result, error) {
	start := s.now()
	defer func() { telemetry.ProcessingDuration.Observe(time.Since(start).Seconds()) }()

	g, err := s.store.GetGame(ctx, gameID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrGameNotFound.With(errors.WithMessagef("game not found: %s", gameID))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load game: %w", err))
	}
	if g.Status != domain.GameStatusInProgress {
		return nil, errors.ErrGameNotInProgress.With(errors.WithMessagef("game %s is %s", gameID, g.Status))
	}

	players, err := s.store.ListPlayerResults(ctx, gameID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load players: %w", err))
	}

	round, err := s.store.GetRound(ctx, gameID, g.CurrentRound)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrRoundNotFound.With(errors.WithMessagef("round not found: game=%s round=%d", gameID, g.CurrentRound))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load round: %w", err))
	}

	// A round still in its countdown cannot be closed. This is what makes a repeated
	// call right after an advance a no-op.
	if round.StartedAt == nil || s.now().Before(*round.StartedAt) {
		return nil, nil
	}

	var active []domain.PlayerResult
	for _, p := range players {
		if p.ActiveIn(g.CurrentRound) {
			active = append(active, p)
		}
	}

	// The boundary is the scheduled end when it has passed, so eliminations and the next
	// round window do not depend on when the trigger happened to run.
	boundary := s.now()
	if round.EndedAt != nil && !round.EndedAt.After(boundary) {
		boundary = *round.EndedAt
	}

	if g.IsFinalRound() {
		return s.finishFinalRound(ctx, g, active, boundary)
	}

	return s.closeRound(ctx, g, players, active, boundary)
}

func (s *Service) finishFinalRound(ctx context.Context, g *domain.Game, active []domain.PlayerResult, at time.Time) (*Result, error) {
	winner, err := s.earliestSolver(ctx, g, active)
	if err != nil {
		return nil, err
	}

	res := &Result{
		GameID:        g.ID,
		PreviousRound: g.CurrentRound,
		Status:        domain.GameStatusCompleted,
	}

	var losers []domain.PlayerResult
	for _, p := range active {
		if winner == nil || p.ID != winner.ID {
			losers = append(losers, p)
		}
	}

	if failed := s.eliminateAll(ctx, g, losers, at); failed > 0 {
		return nil, errors.Internal(fmt.Errorf("final round of game %s: %d player updates failed", g.ID, failed))
	}
	res.EliminatedCount = len(losers)

	completion := store.Completion{GameID: g.ID, EndedAt: at}
	if winner != nil {
		completion.WinnerID, completion.WinnerRound = winner.ID, g.CurrentRound
		res.RemainingPlayers = 1
		res.Winner = &Winner{PlayerResultID: winner.ID, Player: winner.Identity.Key()}
	}

	return s.complete(ctx, g, completion, res)
}

// earliestSolver picks the active player whose first correct answer came first, ties
// broken by the persisted order of the correct attempts.
func (s *Service) earliestSolver(ctx context.Context, g *domain.Game, active []domain.PlayerResult) (*domain.PlayerResult, error) {
	attempts, err := s.store.CorrectAttempts(ctx, g.ID, g.CurrentRound)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load correct attempts: %w", err))
	}

	order := make(map[string]int, len(attempts))
	for i, a := range attempts {
		if _, ok := order[a.PlayerResultID]; !ok {
			order[a.PlayerResultID] = i
		}
	}

	var candidates []domain.PlayerResult
	for _, p := range active {
		if rr := p.RoundResult(g.CurrentRound); rr.Solved() && rr.FirstCorrectAt != nil {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	position := func(p domain.PlayerResult) int {
		if i, ok := order[p.ID]; ok {
			return i
		}
		return len(attempts)
	}

	slices.SortStableFunc(candidates, func(a, b domain.PlayerResult) int {
		return cmp.Or(
			a.RoundResult(g.CurrentRound).FirstCorrectAt.Compare(*b.RoundResult(g.CurrentRound).FirstCorrectAt),
			cmp.Compare(position(a), position(b)),
		)
	})

	return &candidates[0], nil
}

func (s *Service) closeRound(ctx context.Context, g *domain.Game, players, active []domain.PlayerResult, at time.Time) (*Result, error) {
	var (
		current   = g.CurrentRound
		survivors []domain.PlayerResult
		losers    []domain.PlayerResult
		failed    int
	)

	for _, p := range active {
		if p.RoundResult(current).Solved() {
			survivors = append(survivors, p)
			continue
		}
		losers = append(losers, p)
	}

	failed += s.eliminateAll(ctx, g, losers, at)
	for _, p := range survivors {
		if err := s.store.UpdateProgress(ctx, p.ID, store.Progress{RoundsCompleted: current}); err != nil {
			failed++
			slog.ErrorContext(ctx, "progression: update progress failed",
				"game_id", g.ID, "round", current, "player_result_id", p.ID, "error", err)
		}
	}

	if failed > 0 {
		return nil, errors.Internal(fmt.Errorf("round %d of game %s: %d player updates failed", current, g.ID, failed))
	}

	res := &Result{
		GameID:           g.ID,
		PreviousRound:    current,
		EliminatedCount:  len(losers),
		RemainingPlayers: len(survivors),
	}

	switch {
	case len(survivors) == 0:
		res.Status = domain.GameStatusCompleted
		return s.complete(ctx, g, store.Completion{GameID: g.ID, EndedAt: at}, res)

	case len(survivors) == 1 && len(players) > 1:
		w := survivors[0]
		res.Status = domain.GameStatusCompleted
		res.Winner = &Winner{PlayerResultID: w.ID, Player: w.Identity.Key()}
		return s.complete(ctx, g, store.Completion{GameID: g.ID, EndedAt: at, WinnerID: w.ID, WinnerRound: current}, res)
	}

	return s.advance(ctx, g, survivors, at, res)
}

func (s *Service) advance(ctx context.Context, g *domain.Game, survivors []domain.PlayerResult, at time.Time, res *Result) (*Result, error) {
	next := g.CurrentRound + 1

	nr, err := s.store.GetRound(ctx, g.ID, next)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrRoundNotFound.With(errors.WithMessagef("round not found: game=%s round=%d", g.ID, next))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load round %d: %w", next, err))
	}

	start, end := rules.NextRoundWindow(at, rules.Round{Length: len(nr.Solution), Time: nr.TimeBudget}, g.Progression.IsFinal(next))
	if _, err := s.store.ScheduleRound(ctx, g.ID, next, start, end); err != nil {
		return nil, errors.Internal(fmt.Errorf("schedule round %d: %w", next, err))
	}

	failed := 0
	for _, p := range survivors {
		if err := s.store.EnsureRoundResult(ctx, p.ID, next); err != nil {
			failed++
			slog.ErrorContext(ctx, "progression: create round result failed",
				"game_id", g.ID, "round", next, "player_result_id", p.ID, "error", err)
		}
	}
	if failed > 0 {
		return nil, errors.Internal(fmt.Errorf("round %d of game %s: %d round results not created", next, g.ID, failed))
	}

	applied, err := s.store.AdvanceRound(ctx, g.ID, g.CurrentRound)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("advance round: %w", err))
	}

	res.NextRound = &next
	res.Status = domain.GameStatusInProgress
	res.Applied = applied
	if !applied {
		return res, nil
	}

	telemetry.RoundsProcessed.WithLabelValues(string(g.Mode), "advanced").Inc()
	slog.InfoContext(ctx, "progression: round advanced",
		"game_id", g.ID, "round", next, "eliminated", res.EliminatedCount, "remaining", res.RemainingPlayers)

	s.eb.Publish(ctx, domain.EventRoundAdvanced{
		GameID:           g.ID,
		PreviousRound:    g.CurrentRound,
		NextRound:        next,
		EliminatedCount:  res.EliminatedCount,
		RemainingPlayers: res.RemainingPlayers,
	})

	return res, nil
}

// eliminateAll eliminates each player in the game's current round and returns how
// many of them could not be updated. A failure does not stop the others.
func (s *Service) eliminateAll(ctx context.Context, g *domain.Game, players []domain.PlayerResult, at time.Time) int {
	var (
		round  = g.CurrentRound
		failed int
	)

	for _, p := range players {
		if err := s.store.Eliminate(ctx, p.ID, round, at); err != nil {
			failed++
			slog.ErrorContext(ctx, "progression: eliminate failed",
				"game_id", g.ID, "round", round, "player_result_id", p.ID, "error", err)
			continue
		}

		if err := s.store.UpdateProgress(ctx, p.ID, store.Progress{RoundsCompleted: round - 1, FinalRound: &round}); err != nil {
			failed++
			slog.ErrorContext(ctx, "progression: update progress failed",
				"game_id", g.ID, "round", round, "player_result_id", p.ID, "error", err)
		}
	}

	telemetry.Eliminations.WithLabelValues(string(g.Mode)).Add(float64(len(players) - failed))
	return failed
}

func (s *Service) complete(ctx context.Context, g *domain.Game, c store.Completion, res *Result) (*Result, error) {
	applied, err := s.store.CompleteGame(ctx, c)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("complete game: %w", err))
	}

	res.Applied = applied
	if !applied {
		return res, nil
	}

	telemetry.RoundsProcessed.WithLabelValues(string(g.Mode), "completed").Inc()
	slog.InfoContext(ctx, "progression: game completed",
		"game_id", g.ID, "round", g.CurrentRound, "winner", c.WinnerID)

	s.publishCompleted(ctx, g.ID, res.Winner)
	return res, nil
}

func (s *Service) publishCompleted(ctx context.Context, gameID string, w *Winner) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		slog.ErrorContext(ctx, "progression: reload completed game failed", "game_id", gameID, "error", err)
		return
	}

	players, err := s.store.ListPlayerResults(ctx, gameID)
	if err != nil {
		slog.ErrorContext(ctx, "progression: reload players failed", "game_id", gameID, "error", err)
		return
	}

	e := domain.EventGameCompleted{Game: *g, Players: players}
	if w != nil {
		e.Winner = &w.Player
	}

	s.eb.Publish(ctx, e)
}

// ProcessCurrent runs the scheduling trigger against the current multiplayer game,
// the most recently started one in progress. It returns nil when nothing was due.
func (s *Service) ProcessCurrent(ctx context.Context) (*Result, error) {
	games, err := s.store.ListGames(ctx, store.GameFilter{
		Status: domain.GameStatusInProgress,
		Mode:   domain.GameModeMultiplayer,
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list games: %w", err))
	}
	if len(games) == 0 {
		return nil, nil
	}

	return s.ProcessGame(ctx, games[0].ID)
}

// Failure is a game a sweep could not process.
type Failure struct {
	GameID string
	Err    error
}

// Sweep is the outcome of ProcessAll: the rounds processed and the games that failed.
type Sweep struct {
	Results  []Result
	Failures []Failure
}

// ProcessAll runs the trigger against every game in progress. A failing game is
// reported in the sweep and does not stop the others; the error is only for failing
// to list the games.
func (s *Service) ProcessAll(ctx context.Context) (*Sweep, error) {
	games, err := s.store.ListGames(ctx, store.GameFilter{Status: domain.GameStatusInProgress})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list games: %w", err))
	}

	var (
		mu    sync.Mutex
		sweep = new(Sweep)
		eg    errgroup.Group
	)
	eg.SetLimit(sweepConcurrency)

	for _, g := range games {
		eg.Go(func() error {
			res, err := s.ProcessGame(ctx, g.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(ctx, "progression: process game failed", "game_id", g.ID, "error", err)
				sweep.Failures = append(sweep.Failures, Failure{GameID: g.ID, Err: err})
			}
			if res != nil {
				sweep.Results = append(sweep.Results, *res)
			}
			return nil
		})
	}
	_ = eg.Wait()

	slices.SortFunc(sweep.Results, func(a, b Result) int { return cmp.Compare(a.GameID, b.GameID) })
	slices.SortFunc(sweep.Failures, func(a, b Failure) int { return cmp.Compare(a.GameID, b.GameID) })
	return sweep, nil
}

// ProcessGame processes one game's current round if it is over. It returns nil when
// the round is still running or another replica holds the game.
func (s *Service) ProcessGame(ctx context.Context, gameID string) (*Result, error) {
	var res *Result
	err := s.withLease(ctx, gameID, func() error {
		if !s.CheckRoundEnd(ctx, gameID) && !s.finalRoundAnswered(ctx, gameID) {
			return nil
		}

		var err error
		res, err = s.ProcessRoundEnd(ctx, gameID)
		return err
	})

	return res, err
}

// finalRoundAnswered reports whether the game is in its final round and a correct
// answer is on record. The submission deciding the round normally closes it; this lets
// the next poll close it when that failed.
func (s *Service) finalRoundAnswered(ctx context.Context, gameID string) bool {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil || g.Status != domain.GameStatusInProgress || !g.IsFinalRound() {
		return false
	}

	attempts, err := s.store.CorrectAttempts(ctx, gameID, g.CurrentRound)
	if err != nil {
		slog.ErrorContext(ctx, "progression: load correct attempts failed", "game_id", gameID, "error", err)
		return false
	}

	return len(attempts) > 0
}

// ForceEndRound ends the current round now, whatever its deadline, and processes it.
func (s *Service) ForceEndRound(ctx context.Context, gameID string) (*Result, error) {
	var res *Result
	err := s.withLease(ctx, gameID, func() error {
		g, err := s.store.GetGame(ctx, gameID)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.ErrGameNotFound.With(errors.WithMessagef("game not found: %s", gameID))
		}
		if err != nil {
			return errors.Internal(fmt.Errorf("load game: %w", err))
		}
		if g.Status != domain.GameStatusInProgress {
			return errors.ErrGameNotInProgress.With(errors.WithMessagef("game %s is %s", gameID, g.Status))
		}

		r, err := s.store.GetRound(ctx, gameID, g.CurrentRound)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.ErrRoundNotFound.With(errors.WithMessagef("round not found: game=%s round=%d", gameID, g.CurrentRound))
		}
		if err != nil {
			return errors.Internal(fmt.Errorf("load round: %w", err))
		}
		if r.StartedAt == nil || s.now().Before(*r.StartedAt) {
			return errors.ErrRoundNotStarted.With(errors.WithMessagef("round %d of game %s has not started", g.CurrentRound, gameID))
		}

		if err := s.store.EndRound(ctx, gameID, g.CurrentRound, s.now()); err != nil {
			return errors.Internal(fmt.Errorf("end round: %w", err))
		}
		slog.InfoContext(ctx, "progression: round force-ended", "game_id", gameID, "round", g.CurrentRound)

		res, err = s.ProcessRoundEnd(ctx, gameID)
		return err
	})

	return res, err
}

func (s *Service) withLease(ctx context.Context, gameID string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}

	release, ok, err := s.locker.Acquire(ctx, "game:"+gameID)
	if err != nil {
		return errors.Internal(err)
	}
	if !ok {
		slog.InfoContext(ctx, "progression: game is being processed elsewhere", "game_id", gameID)
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "progression: release lease failed", "game_id", gameID, "error", err)
		}
	}()

	return fn()
}
