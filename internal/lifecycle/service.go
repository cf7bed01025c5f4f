// Package lifecycle creates games, manages the multiplayer queue, and renders the
// polled game state.
package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/event"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
	"github.com/victornm/wordroyale/internal/telemetry"
	"github.com/victornm/wordroyale/internal/words"
)

// WordSource picks and scrambles puzzle words.
type WordSource interface {
	RandomWord(length int) (string, error)
	Shuffle(word string) string
}

// Locker grants named leases. A nil Locker disables leasing.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error)
}

type Config struct {
	Store       store.Store
	Words       WordSource
	EventBus    event.Publisher
	Locker      Locker
	Schedule    rules.Schedule
	Multiplayer rules.Config
	Daily       rules.Config
	Now         func() time.Time
}

type Service struct {
	store       store.Store
	words       WordSource
	eb          event.Publisher
	locker      Locker
	schedule    rules.Schedule
	multiplayer rules.Config
	daily       rules.Config
	now         func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:       c.Store,
		words:       c.Words,
		eb:          c.EventBus,
		locker:      c.Locker,
		schedule:    c.Schedule,
		multiplayer: c.Multiplayer,
		daily:       c.Daily,
		now:         c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.multiplayer.MaxRounds == 0 {
		s.multiplayer = rules.Multiplayer
	}
	if s.daily.MaxRounds == 0 {
		s.daily = rules.Daily
	}
	if s.schedule.Location == nil {
		sc, err := rules.DefaultSchedule()
		if err != nil {
			sc = rules.Schedule{Location: time.UTC, Hours: []int{9, 18}}
		}
		s.schedule = sc
	}

	return s
}

type StartResult struct {
	GameID      string
	PlayerCount int
	// Resumed is set when StartDaily returned the caller's unfinished game.
	Resumed bool
}

// StartGame turns everyone waiting in the queue into a new multiplayer game. Every
// round's puzzle is generated up front and round 1 starts now. It returns nil when
// the queue is empty.
func (s *Service) StartGame(ctx context.Context) (*StartResult, error) {
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "lifecycle:start")
		if err != nil {
			return nil, errors.Internal(err)
		}
		if !ok {
			return nil, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.ErrorContext(ctx, "lifecycle: release lease failed", "error", err)
			}
		}()
	}

	queue, err := s.store.ListWaiting(ctx)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list queue: %w", err))
	}
	if len(queue) == 0 {
		return nil, nil
	}

	var (
		ids         = make([]domain.PlayerIdentity, 0, len(queue))
		entryIDs    = make([]string, 0, len(queue))
		joinedTimes = make([]time.Time, 0, len(queue))
	)
	for _, e := range queue {
		ids = append(ids, e.Identity)
		entryIDs = append(entryIDs, e.ID)
		joinedTimes = append(joinedTimes, e.JoinedAt)
	}

	ng, err := s.newGame(domain.GameModeMultiplayer, s.multiplayer, ids, joinedTimes)
	if err != nil {
		return nil, err
	}
	ng.QueueEntryIDs = entryIDs

	if err := s.store.CreateGame(ctx, *ng); err != nil {
		return nil, errors.Internal(fmt.Errorf("create game: %w", err))
	}

	s.started(ctx, ng)
	return &StartResult{GameID: ng.Game.ID, PlayerCount: len(ng.Players)}, nil
}

// StartDaily starts a daily puzzle for the caller, or returns their unfinished one.
func (s *Service) StartDaily(ctx context.Context, id domain.PlayerIdentity) (*StartResult, error) {
	if id == nil {
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("player identity is required"))
	}

	p, err := s.store.FindPlayerResult(ctx, store.PlayerFilter{
		Identity:   id,
		GameStatus: domain.GameStatusInProgress,
		GameMode:   domain.GameModeDaily,
	})
	if err == nil {
		return &StartResult{GameID: p.GameID, PlayerCount: 1, Resumed: true}, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Internal(fmt.Errorf("find daily game: %w", err))
	}

	ng, err := s.newGame(domain.GameModeDaily, s.daily, []domain.PlayerIdentity{id}, []time.Time{s.now()})
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateGame(ctx, *ng); err != nil {
		return nil, errors.Internal(fmt.Errorf("create game: %w", err))
	}

	s.started(ctx, ng)
	return &StartResult{GameID: ng.Game.ID, PlayerCount: 1}, nil
}

func (s *Service) newGame(mode domain.GameMode, cfg rules.Config, players []domain.PlayerIdentity, joined []time.Time) (*store.NewGame, error) {
	now := s.now()
	gameID, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate game ID: %w", err))
	}

	ng := &store.NewGame{
		Game: domain.Game{
			ID:           gameID.String(),
			Mode:         mode,
			Status:       domain.GameStatusInProgress,
			CurrentRound: 1,
			Progression:  cfg,
			CreatedAt:    now,
			StartedAt:    &now,
		},
	}

	for _, p := range cfg.Plan(mode.FinalRoundLength(), words.MaxLength) {
		word, err := s.words.RandomWord(p.Length)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("pick word for round %d: %w", p.Number, err))
		}

		r := domain.Round{
			GameID:     ng.Game.ID,
			Number:     p.Number,
			Anagram:    s.words.Shuffle(word),
			Solution:   word,
			TimeBudget: p.Time,
		}
		if p.Number == 1 {
			start := now
			r.StartedAt = &start
			if !cfg.IsFinal(1) {
				end := now.Add(p.Time)
				r.EndedAt = &end
			}
		}

		ng.Rounds = append(ng.Rounds, r)
	}

	for i, id := range players {
		prID, err := uuid.NewV7()
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("generate player result ID: %w", err))
		}

		ng.Players = append(ng.Players, domain.PlayerResult{
			ID:           prID.String(),
			GameID:       ng.Game.ID,
			Identity:     id,
			CreatedAt:    joined[i],
			RoundResults: []domain.RoundResult{{PlayerResultID: prID.String(), RoundNumber: 1}},
		})
	}

	return ng, nil
}

func (s *Service) started(ctx context.Context, ng *store.NewGame) {
	telemetry.GamesStarted.WithLabelValues(string(ng.Game.Mode)).Inc()
	slog.InfoContext(ctx, "lifecycle: game started",
		"game_id", ng.Game.ID, "mode", ng.Game.Mode, "players", len(ng.Players), "rounds", len(ng.Rounds))

	s.eb.Publish(ctx, domain.EventGameStarted{Game: ng.Game, PlayerCount: len(ng.Players)})
}

// JoinQueue puts the caller in the queue for the next multiplayer game. Joining twice
// returns the existing entry.
func (s *Service) JoinQueue(ctx context.Context, id domain.PlayerIdentity) (*domain.QueueEntry, bool, error) {
	if id == nil {
		return nil, false, errors.ErrInvalidIdentity.With(errors.WithMessagef("player identity is required"))
	}

	entryID, err := uuid.NewV7()
	if err != nil {
		return nil, false, errors.Internal(fmt.Errorf("generate queue entry ID: %w", err))
	}

	e, created, err := s.store.Enqueue(ctx, domain.QueueEntry{
		ID:       entryID.String(),
		Identity: id,
		JoinedAt: s.now(),
	})
	if err != nil {
		return nil, false, errors.Internal(fmt.Errorf("enqueue: %w", err))
	}

	return e, created, nil
}

func (s *Service) LeaveQueue(ctx context.Context, id domain.PlayerIdentity) error {
	if id == nil {
		return errors.ErrInvalidIdentity.With(errors.WithMessagef("player identity is required"))
	}

	e, err := s.store.FindWaiting(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.ErrNotInQueue.With(errors.WithMessagef("%s is not in the queue", id.Key()))
	}
	if err != nil {
		return errors.Internal(fmt.Errorf("find queue entry: %w", err))
	}

	if err := s.store.DeleteQueueEntry(ctx, e.ID); err != nil {
		return errors.Internal(fmt.Errorf("delete queue entry: %w", err))
	}

	return nil
}

type QueueStatus struct {
	Waiting      int
	InQueue      bool
	NextGameAt   time.Time
	QueueOpensAt time.Time
	QueueOpen    bool
}

// QueueStatus reports the queue size and the next scheduled game. id may be nil.
func (s *Service) QueueStatus(ctx context.Context, id domain.PlayerIdentity) (*QueueStatus, error) {
	waiting, err := s.store.ListWaiting(ctx)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list queue: %w", err))
	}

	now := s.now()
	next := s.schedule.Next(now)
	st := &QueueStatus{
		Waiting:      len(waiting),
		NextGameAt:   next,
		QueueOpensAt: rules.QueueOpensAt(next),
	}
	st.QueueOpen = !now.Before(st.QueueOpensAt)

	if id != nil {
		for _, e := range waiting {
			if e.Identity.Key() == id.Key() {
				st.InQueue = true
				break
			}
		}
	}

	return st, nil
}

type PlayerStatus string

const (
	PlayerStatusActive     PlayerStatus = "ACTIVE"
	PlayerStatusEliminated PlayerStatus = "ELIMINATED"
	PlayerStatusWinner     PlayerStatus = "WINNER"
)

type RoundView struct {
	Number    int
	Length    int
	Final     bool
	Anagram   string
	StartedAt *time.Time
	EndsAt    *time.Time
	// Solution is shown once the round is closed.
	Solution string
}

type PlayerView struct {
	PlayerResultID  string
	Status          PlayerStatus
	RoundsCompleted int
	FinalRound      *int
	Round           *domain.RoundResult
}

type GameState struct {
	Game          domain.Game
	Round         RoundView
	TotalPlayers  int
	ActivePlayers int
	Winner        *string
	Me            *PlayerView
	ServerTime    time.Time
}

// CurrentGame renders the current multiplayer game, the most recently started one in
// progress.
func (s *Service) CurrentGame(ctx context.Context, id domain.PlayerIdentity) (*GameState, error) {
	games, err := s.store.ListGames(ctx, store.GameFilter{
		Status: domain.GameStatusInProgress,
		Mode:   domain.GameModeMultiplayer,
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list games: %w", err))
	}
	if len(games) == 0 {
		return nil, errors.ErrGameNotFound.With(errors.WithMessagef("no multiplayer game in progress"))
	}

	return s.GameState(ctx, games[0].ID, id)
}

// GameState renders what a polling client sees of a game. id may be nil.
func (s *Service) GameState(ctx context.Context, gameID string, id domain.PlayerIdentity) (*GameState, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrGameNotFound.With(errors.WithMessagef("game not found: %s", gameID))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load game: %w", err))
	}

	r, err := s.store.GetRound(ctx, gameID, g.CurrentRound)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrRoundNotFound.With(errors.WithMessagef("round not found: game=%s round=%d", gameID, g.CurrentRound))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load round: %w", err))
	}

	players, err := s.store.ListPlayerResults(ctx, gameID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load players: %w", err))
	}

	now := s.now()
	st := &GameState{
		Game:         *g,
		TotalPlayers: len(players),
		ServerTime:   now,
		Round: RoundView{
			Number:    r.Number,
			Length:    len(r.Solution),
			Final:     g.IsFinalRound(),
			StartedAt: r.StartedAt,
			EndsAt:    r.EndedAt,
		},
	}

	if r.StartedAt != nil && !now.Before(*r.StartedAt) {
		st.Round.Anagram = r.Anagram
	}
	if g.Status == domain.GameStatusCompleted || (!st.Round.Final && rules.Deadline(r.EndedAt, now)) {
		st.Round.Solution = r.Solution
	}

	for _, p := range players {
		status := playerStatus(p, g.CurrentRound)
		if status == PlayerStatusWinner {
			key := p.Identity.Key()
			st.Winner = &key
		}
		if status == PlayerStatusActive {
			st.ActivePlayers++
		}

		if id != nil && p.Identity.Key() == id.Key() {
			st.Me = &PlayerView{
				PlayerResultID:  p.ID,
				Status:          status,
				RoundsCompleted: p.RoundsCompleted,
				FinalRound:      p.FinalRound,
				Round:           p.RoundResult(g.CurrentRound),
			}
		}
	}

	return st, nil
}

func playerStatus(p domain.PlayerResult, round int) PlayerStatus {
	switch {
	case p.IsWinner:
		return PlayerStatusWinner
	case p.EliminatedBy(round):
		return PlayerStatusEliminated
	default:
		return PlayerStatusActive
	}
}

// Abandon gives up a daily puzzle: the caller is eliminated in the current round and
// the game completes.
func (s *Service) Abandon(ctx context.Context, id domain.PlayerIdentity, gameID string) error {
	if id == nil {
		return errors.ErrInvalidIdentity.With(errors.WithMessagef("player identity is required"))
	}

	p, err := s.store.FindPlayerResult(ctx, store.PlayerFilter{
		Identity:   id,
		GameID:     gameID,
		GameStatus: domain.GameStatusInProgress,
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.ErrNotInActiveGame.With(errors.WithMessagef("no game %s in progress for %s", gameID, id.Key()))
	}
	if err != nil {
		return errors.Internal(fmt.Errorf("find player: %w", err))
	}

	g, err := s.store.GetGame(ctx, p.GameID)
	if err != nil {
		return errors.Internal(fmt.Errorf("load game: %w", err))
	}
	if g.Mode != domain.GameModeDaily {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("only daily games can be abandoned"))
	}

	now, round := s.now(), g.CurrentRound
	if err := s.store.Eliminate(ctx, p.ID, round, now); err != nil {
		return errors.Internal(fmt.Errorf("eliminate: %w", err))
	}
	if err := s.store.UpdateProgress(ctx, p.ID, store.Progress{RoundsCompleted: round - 1, FinalRound: &round}); err != nil {
		return errors.Internal(fmt.Errorf("update progress: %w", err))
	}

	ok, err := s.store.CompleteGame(ctx, store.Completion{GameID: g.ID, EndedAt: now})
	if err != nil {
		return errors.Internal(fmt.Errorf("complete game: %w", err))
	}
	if !ok {
		return nil
	}

	slog.InfoContext(ctx, "lifecycle: daily game abandoned", "game_id", g.ID, "round", round)

	completed, err := s.store.GetGame(ctx, g.ID)
	if err != nil {
		return errors.Internal(fmt.Errorf("reload game: %w", err))
	}
	players, err := s.store.ListPlayerResults(ctx, g.ID)
	if err != nil {
		return errors.Internal(fmt.Errorf("reload players: %w", err))
	}

	s.eb.Publish(ctx, domain.EventGameCompleted{Game: *completed, Players: players})
	return nil
}
