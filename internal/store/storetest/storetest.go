// Package storetest seeds games into a store for tests and provides a settable clock
// and an event recorder.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/event"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
)

// T0 is the default start of the current round of a seeded game.
var T0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Solutions are the seeded solution words by length.
var Solutions = map[int]string{
	5: "apple",
	6: "listen",
	7: "kitchen",
	8: "elephant",
	9: "honeymoon",
}

type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Events records published events synchronously.
type Events struct {
	mu     sync.Mutex
	events []event.Event
}

var _ event.Publisher = (*Events)(nil)

func (e *Events) Publish(_ context.Context, ev event.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *Events) All() []event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

func (e *Events) Names() []string {
	var names []string
	for _, ev := range e.All() {
		names = append(names, ev.Name())
	}
	return names
}

type game struct {
	id      string
	mode    domain.GameMode
	cfg     rules.Config
	players int
	current int
	start   time.Time
}

type Option func(*game)

func WithID(id string) Option { return func(g *game) { g.id = id } }

func WithMode(m domain.GameMode) Option { return func(g *game) { g.mode = m } }

func WithProgression(c rules.Config) Option { return func(g *game) { g.cfg = c } }

func WithPlayers(n int) Option { return func(g *game) { g.players = n } }

// WithCurrentRound seeds a game already in round n; every player solved the earlier rounds.
func WithCurrentRound(n int) Option { return func(g *game) { g.current = n } }

// WithStart sets when the current round started.
func WithStart(t time.Time) Option { return func(g *game) { g.start = t } }

type Seeded struct {
	Game       domain.Game
	PlayerIDs  []string
	Identities []domain.PlayerIdentity
	Rounds     []domain.Round
}

// Seed creates an in-progress game. Defaults: id "g1", multiplayer progression,
// 2 players, round 1 started at T0.
func Seed(t *testing.T, s store.Store, opts ...Option) Seeded {
	t.Helper()

	g := game{
		id:      "g1",
		mode:    domain.GameModeMultiplayer,
		cfg:     rules.Multiplayer,
		players: 2,
		current: 1,
		start:   T0,
	}
	for _, opt := range opts {
		opt(&g)
	}

	started := g.start
	out := Seeded{
		Game: domain.Game{
			ID:           g.id,
			Mode:         g.mode,
			Status:       domain.GameStatusInProgress,
			CurrentRound: g.current,
			Progression:  g.cfg,
			CreatedAt:    g.start,
			StartedAt:    &started,
		},
	}

	for _, p := range g.cfg.Plan(g.mode.FinalRoundLength(), 9) {
		r := domain.Round{
			GameID:     g.id,
			Number:     p.Number,
			Solution:   Solutions[p.Length],
			Anagram:    reverse(Solutions[p.Length]),
			TimeBudget: p.Time,
		}

		switch {
		case p.Number < g.current:
			from, to := g.start.Add(-time.Hour), g.start.Add(-time.Hour+p.Time)
			r.StartedAt, r.EndedAt = &from, &to
		case p.Number == g.current:
			from := g.start
			r.StartedAt = &from
			if !g.cfg.IsFinal(p.Number) {
				to := from.Add(p.Time)
				r.EndedAt = &to
			}
		}

		out.Rounds = append(out.Rounds, r)
	}

	var players []domain.PlayerResult
	for i := 1; i <= g.players; i++ {
		id := domain.Authenticated{UserID: fmt.Sprintf("%s-u%d", g.id, i)}
		p := domain.PlayerResult{
			ID:              fmt.Sprintf("%s-p%d", g.id, i),
			Identity:        id,
			RoundsCompleted: g.current - 1,
			CreatedAt:       g.start.Add(time.Duration(i) * time.Millisecond),
		}

		for n := 1; n < g.current; n++ {
			at := g.start.Add(-time.Hour)
			p.RoundResults = append(p.RoundResults, domain.RoundResult{
				RoundNumber:     n,
				TotalAttempts:   1,
				CorrectAttempts: 1,
				FirstCorrectAt:  &at,
			})
		}
		p.RoundResults = append(p.RoundResults, domain.RoundResult{RoundNumber: g.current})

		players = append(players, p)
		out.PlayerIDs = append(out.PlayerIDs, p.ID)
		out.Identities = append(out.Identities, id)
	}

	require.NoError(t, s.CreateGame(context.Background(), store.NewGame{
		Game:    out.Game,
		Rounds:  out.Rounds,
		Players: players,
	}))

	return out
}

// Answer records an attempt of a player in a round.
func Answer(t *testing.T, s store.Store, gameID, playerID string, round int, correct bool, at time.Time) {
	t.Helper()

	_, err := s.RecordAttempt(context.Background(), &domain.SubmissionAttempt{
		ID:             fmt.Sprintf("%s-%d-%d", playerID, round, at.UnixNano()),
		PlayerResultID: playerID,
		GameID:         gameID,
		RoundNumber:    round,
		Answer:         "answer",
		IsCorrect:      correct,
		SubmittedAt:    at,
	})
	require.NoError(t, err)
}

func reverse(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}
