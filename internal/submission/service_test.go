package submission_test

import (
	"context"
	stderrors "errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/progression"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
	"github.com/victornm/wordroyale/internal/store/storetest"
	"github.com/victornm/wordroyale/internal/submission"
	"github.com/victornm/wordroyale/internal/words"
)

var t0 = storetest.T0

var threeRounds = rules.Config{
	InitialTimeSeconds:     60,
	TimeDecreasePerRound:   0,
	InitialAnagramLength:   5,
	LengthIncreasePerRound: 1,
	MaxRounds:              3,
}

var twoRounds = rules.Config{
	InitialTimeSeconds:     60,
	TimeDecreasePerRound:   5,
	InitialAnagramLength:   5,
	LengthIncreasePerRound: 1,
	MaxRounds:              2,
}

func TestService_Submit_SinglePlayerScenario(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	g := storetest.Seed(t, f.store, storetest.WithPlayers(1), storetest.WithProgression(threeRounds))
	me := g.Identities[0]

	f.clock.Set(t0.Add(5 * time.Second))
	resp, err := f.svc.Submit(ctx, submission.SubmitRequest{Identity: me, Guess: "appel"})
	require.NoError(t, err)
	assert.False(t, resp.Correct, "a permutation that is not a dictionary word is wrong")
	assert.False(t, resp.RoundComplete)
	assert.Empty(t, resp.Solution)
	assert.Equal(t, 1, resp.TotalAttempts)

	f.clock.Advance(time.Second)
	resp, err = f.svc.Submit(ctx, submission.SubmitRequest{Identity: me, Guess: " APPLE "})
	require.NoError(t, err)
	assert.True(t, resp.Correct)
	assert.True(t, resp.RoundComplete, "a lone player's correct answer closes the round")
	assert.False(t, resp.GameComplete)
	require.NotNil(t, resp.NextRound)
	assert.Equal(t, 2, *resp.NextRound)
	assert.Equal(t, "apple", resp.Solution)
	assert.Equal(t, 2, resp.TotalAttempts)
	assert.Equal(t, 1, resp.CorrectAttempts)

	game, err := f.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, game.CurrentRound)
	assert.Equal(t, domain.GameStatusInProgress, game.Status)

	r, err := f.store.GetRound(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(6*time.Second+rules.CountdownInterval), *r.StartedAt)
}

func TestService_Submit(t *testing.T) {
	type outputs struct {
		resp *submission.SubmitResponse
		err  error
	}

	tests := map[string]struct {
		arrange func(t *testing.T, f *fixture) submission.SubmitRequest
		assert  func(t *testing.T, f *fixture, out outputs)
	}{
		"should accept another dictionary word with the same letters": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store, storetest.WithCurrentRound(2))
				f.clock.Set(t0.Add(time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "silent"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				require.NoError(t, out.err)
				assert.True(t, out.resp.Correct)
				assert.Equal(t, "listen", out.resp.Solution)
				assert.False(t, out.resp.RoundComplete, "a multiplayer round only closes at its deadline")
			},
		},

		"should only accept the stored solution in strict mode": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				f.strict()
				g := storetest.Seed(t, f.store, storetest.WithCurrentRound(2))
				f.clock.Set(t0.Add(time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "silent"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				require.NoError(t, out.err)
				assert.False(t, out.resp.Correct)
			},
		},

		"should reject a player without a game in progress": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				storetest.Seed(t, f.store)
				return submission.SubmitRequest{Identity: domain.Anonymous{SessionID: "anon_x"}, Guess: "apple"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrNotInActiveGame)
			},
		},

		"should reject a game the player is not part of": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store)
				storetest.Seed(t, f.store, storetest.WithID("g2"))
				f.clock.Set(t0.Add(time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], GameID: "g2", Guess: "apple"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrNotInActiveGame)
			},
		},

		"should reject a missing identity": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				return submission.SubmitRequest{Guess: "apple"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrInvalidIdentity)
			},
		},

		"should reject a player eliminated in the current round": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store)
				require.NoError(t, f.store.Eliminate(context.Background(), g.PlayerIDs[0], 1, t0))
				f.clock.Set(t0.Add(time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "apple"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrPlayerEliminated)
			},
		},

		"should reject a player eliminated in an earlier round": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store, storetest.WithCurrentRound(2))
				require.NoError(t, f.store.Eliminate(context.Background(), g.PlayerIDs[0], 1, t0))
				f.clock.Set(t0.Add(time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "listen"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrPlayerEliminated)
			},
		},

		"should reject a guess at the round end": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store)
				f.clock.Set(t0.Add(time.Minute))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "apple"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrRoundEnded)
			},
		},

		"should reject a guess during the countdown": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store, storetest.WithStart(t0.Add(10*time.Second)))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "apple"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrRoundNotStarted)
			},
		},

		"should reject a malformed guess without recording it": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store)
				f.clock.Set(t0.Add(time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "app1e"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				assert.ErrorIs(t, out.err, errors.ErrInvalidGuess)
				_, err := f.store.LastAttempt(context.Background(), "g1-p1", 1)
				assert.ErrorIs(t, err, store.ErrNotFound)
			},
		},

		"should declare the first correct answer of the final round the winner": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store, storetest.WithProgression(twoRounds), storetest.WithCurrentRound(2))
				f.clock.Set(t0.Add(3 * time.Second))
				return submission.SubmitRequest{Identity: g.Identities[1], Guess: "honeymoon"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				require.NoError(t, out.err)
				assert.True(t, out.resp.FinalRound)
				assert.True(t, out.resp.RoundComplete)
				assert.True(t, out.resp.GameComplete)
				require.NotNil(t, out.resp.Winner)
				assert.Equal(t, "user:g1-u2", *out.resp.Winner)

				players, err := f.store.ListPlayerResults(context.Background(), "g1")
				require.NoError(t, err)
				assert.True(t, players[1].IsWinner)
				assert.True(t, players[0].RoundResult(2).IsEliminated)
			},
		},

		"should not close the final round for a later correct answer": {
			arrange: func(t *testing.T, f *fixture) submission.SubmitRequest {
				g := storetest.Seed(t, f.store, storetest.WithProgression(twoRounds), storetest.WithCurrentRound(2))
				// Player 2 answered first but the round was not closed for them.
				storetest.Answer(t, f.store, "g1", g.PlayerIDs[1], 2, true, t0.Add(3*time.Second))
				f.clock.Set(t0.Add(5 * time.Second))
				return submission.SubmitRequest{Identity: g.Identities[0], Guess: "honeymoon"}
			},
			assert: func(t *testing.T, f *fixture, out outputs) {
				require.NoError(t, out.err)
				assert.True(t, out.resp.Correct)
				assert.False(t, out.resp.GameComplete)

				f.clock.Advance(time.Second)
				resp, err := f.svc.Submit(context.Background(), submission.SubmitRequest{
					Identity: domain.Authenticated{UserID: "g1-u2"},
					Guess:    "honeymoon",
				})
				require.NoError(t, err)
				assert.True(t, resp.GameComplete, "the earliest solver's retry closes the round")
				require.NotNil(t, resp.Winner)
				assert.Equal(t, "user:g1-u2", *resp.Winner)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := makeFixture(t)
			req := tt.arrange(t, f)

			var out outputs
			out.resp, out.err = f.svc.Submit(context.Background(), req)

			tt.assert(t, f, out)
		})
	}
}

func TestService_Submit_RateLimit(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	g := storetest.Seed(t, f.store)
	me := g.Identities[0]

	f.clock.Set(t0.Add(10 * time.Second))
	_, err := f.svc.Submit(ctx, submission.SubmitRequest{Identity: me, Guess: "pleap"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(11*time.Second - time.Millisecond))
	_, err = f.svc.Submit(ctx, submission.SubmitRequest{Identity: me, Guess: "apple"})
	assert.ErrorIs(t, err, errors.ErrRateLimited)

	f.clock.Set(t0.Add(11 * time.Second))
	resp, err := f.svc.Submit(ctx, submission.SubmitRequest{Identity: me, Guess: "apple"})
	require.NoError(t, err)
	assert.True(t, resp.Correct)
	assert.Equal(t, 2, resp.TotalAttempts, "the rejected guess is not recorded")
}

func TestService_Submit_EliminationIsPermanent(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	g := storetest.Seed(t, f.store, storetest.WithPlayers(3))
	storetest.Answer(t, f.store, "g1", g.PlayerIDs[1], 1, true, t0.Add(time.Second))
	storetest.Answer(t, f.store, "g1", g.PlayerIDs[2], 1, true, t0.Add(time.Second))

	f.clock.Set(t0.Add(time.Minute))
	_, err := f.rounds.ProcessRoundEnd(ctx, "g1")
	require.NoError(t, err)

	for _, d := range []time.Duration{0, 20 * time.Second, time.Hour} {
		f.clock.Set(t0.Add(time.Minute + rules.CountdownInterval + d))
		_, err = f.svc.Submit(ctx, submission.SubmitRequest{Identity: g.Identities[0], Guess: "listen"})
		assert.ErrorIs(t, err, errors.ErrPlayerEliminated)
	}
}

func TestService_Submit_FinalRoundClosedByNextPoll(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	f.svc = submission.NewService(submission.Config{
		Store:       f.store,
		Words:       f.dict,
		Progression: &failingCloser{RoundCloser: f.rounds, failures: 1},
		Now:         f.clock.Now,
	})
	g := storetest.Seed(t, f.store, storetest.WithProgression(twoRounds), storetest.WithCurrentRound(2))

	f.clock.Set(t0.Add(3 * time.Second))
	resp, err := f.svc.Submit(ctx, submission.SubmitRequest{Identity: g.Identities[1], Guess: "honeymoon"})
	require.NoError(t, err)
	assert.True(t, resp.Correct)
	assert.False(t, resp.GameComplete, "closing the round failed")

	f.clock.Set(t0.Add(5 * time.Second))
	resp, err = f.svc.Submit(ctx, submission.SubmitRequest{Identity: g.Identities[0], Guess: "honeymoon"})
	require.NoError(t, err)
	assert.True(t, resp.Correct)
	assert.False(t, resp.GameComplete, "a later solver does not decide the round")

	f.clock.Set(t0.Add(time.Minute))
	res, err := f.rounds.ProcessGame(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "g1-p2", res.Winner.PlayerResultID)

	game, err := f.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, domain.GameStatusCompleted, game.Status)
}

type failingCloser struct {
	submission.RoundCloser
	failures int
}

func (c *failingCloser) ProcessRoundEnd(ctx context.Context, gameID string) (*progression.Result, error) {
	if c.failures > 0 {
		c.failures--
		return nil, stderrors.New("connection reset")
	}

	return c.RoundCloser.ProcessRoundEnd(ctx, gameID)
}

type fixture struct {
	store  *store.Memory
	clock  *storetest.Clock
	rounds *progression.Service
	svc    *submission.Service
	dict   *words.Supply
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()

	dict, err := words.New(fstest.MapFS{
		"5.txt": {Data: []byte("apple\nearth\nheart\n")},
		"6.txt": {Data: []byte("listen\nsilent\n")},
		"9.txt": {Data: []byte("honeymoon\n")},
	})
	require.NoError(t, err)

	f := &fixture{
		store: store.NewMemory(),
		clock: storetest.NewClock(t0),
		dict:  dict,
	}

	f.rounds = progression.NewService(progression.Config{
		Store:    f.store,
		EventBus: &storetest.Events{},
		Now:      f.clock.Now,
	})
	f.build(false)

	return f
}

func (f *fixture) build(strict bool) {
	f.svc = submission.NewService(submission.Config{
		Store:          f.store,
		Words:          f.dict,
		Progression:    f.rounds,
		Now:            f.clock.Now,
		StrictSolution: strict,
	})
}

func (f *fixture) strict() {
	f.build(true)
}
