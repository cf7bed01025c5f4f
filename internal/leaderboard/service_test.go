package leaderboard_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/event"
	"github.com/victornm/wordroyale/internal/leaderboard"
)

var (
	alice = domain.Authenticated{UserID: "alice"}
	bob   = domain.Authenticated{UserID: "bob"}
	carol = domain.Anonymous{SessionID: "anon_carol"}
)

func TestService_RecordGame(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	e := completed("g1", result(alice, 3, true), result(bob, 2, false))
	require.NoError(t, s.RecordGame(ctx, e))
	require.NoError(t, s.RecordGame(ctx, e), "a repeated event is ignored")

	st, err := s.GetPlayerStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, &domain.PlayerStats{
		Player:          alice.Key(),
		GamesPlayed:     1,
		Wins:            1,
		RoundsCompleted: 3,
		AverageRounds:   3,
		Score:           0,
	}, st, "not ranked below 5 games")

	l, err := s.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, l.Entries)

	st, err = s.GetPlayerStats(ctx, carol)
	require.NoError(t, err)
	assert.Zero(t, st.GamesPlayed)
}

func TestService_RecordGame_Redelivery(t *testing.T) {
	ctx := context.Background()
	broken := &failPipelineOnce{key: "test:stats:" + bob.Key()}
	s := makeService(t, withRedisHook(broken))

	e := completed("g1", result(alice, 3, true), result(bob, 2, false), result(carol, 1, false))
	require.Error(t, s.RecordGame(ctx, e), "bob's stats were not written")
	require.NoError(t, s.RecordGame(ctx, e), "the redelivered event counts bob")
	require.NoError(t, s.RecordGame(ctx, e))

	tests := map[string]struct {
		id    domain.PlayerIdentity
		games int
		wins  int
	}{
		"counted before the failure": {id: alice, games: 1, wins: 1},
		"counted on redelivery":      {id: bob, games: 1},
		"counted after the failure":  {id: carol, games: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			st, err := s.GetPlayerStats(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.games, st.GamesPlayed)
			assert.Equal(t, tt.wins, st.Wins)
		})
	}
}

func TestService_Score(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	for i := range 5 {
		require.NoError(t, s.RecordGame(ctx, completed(fmt.Sprintf("g%d", i), result(alice, 4, i < 2))))
	}

	st, err := s.GetPlayerStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 5, st.GamesPlayed)
	assert.Equal(t, 2, st.Wins)
	assert.InDelta(t, 4.0, st.AverageRounds, 1e-9)
	// 0.4*0.4 + 0.3*0.4 + 0.2*log10(3)/log10(101) + 0.1*1
	assert.InDelta(t, 0.427609, st.Score, 1e-6)
}

func TestService_GetLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	for i := range 5 {
		require.NoError(t, s.RecordGame(ctx, completed(fmt.Sprintf("g%d", i),
			result(alice, 4, true),
			result(bob, 4, true),
			result(carol, 1, false),
		)))
	}

	l, err := s.GetLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, l.Entries, 3)

	assert.Equal(t, 1, l.Entries[0].Rank)
	assert.Equal(t, 1, l.Entries[1].Rank, "equal scores share a rank")
	assert.ElementsMatch(t, []string{alice.Key(), bob.Key()}, []string{l.Entries[0].Player, l.Entries[1].Player})
	assert.Equal(t, domain.LeaderboardEntry{Rank: 3, Player: carol.Key(), Score: l.Entries[2].Score}, l.Entries[2])
	assert.Less(t, l.Entries[2].Score, l.Entries[0].Score)

	l, err = s.GetLeaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, l.Entries, 1)
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	tests := map[string]struct {
		games int
		want  int
	}{
		"one game publishes once": {
			games: 1,
			want:  1,
		},
		"games within the publish interval publish once": {
			games: 3,
			want:  1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			eb := event.NewBus()
			var (
				mu        sync.Mutex
				published []domain.EventLeaderboardUpdated
			)
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				published = append(published, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))
			for i := range tt.games {
				require.NoError(t, s.RecordGame(context.Background(), completed(fmt.Sprintf("g%d", i), result(alice, 1, false))))
			}

			eb.Stop()
			assert.Len(t, published, tt.want)
		})
	}
}

func TestService_SubscribesToGameCompleted(t *testing.T) {
	eb := event.NewBus()
	s := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), completed("g1", result(alice, 2, true)))
	eb.Stop()

	st, err := s.GetPlayerStats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Wins)
}

func completed(gameID string, players ...domain.PlayerResult) domain.EventGameCompleted {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.EventGameCompleted{
		Game: domain.Game{
			ID:      gameID,
			Mode:    domain.GameModeMultiplayer,
			Status:  domain.GameStatusCompleted,
			EndedAt: &now,
		},
		Players: players,
	}
}

func result(id domain.PlayerIdentity, rounds int, winner bool) domain.PlayerResult {
	return domain.PlayerResult{
		Identity:        id,
		RoundsCompleted: rounds,
		IsWinner:        winner,
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withRedisHook(h redis.Hook) options {
	return func(c *leaderboard.Config) {
		c.Redis.AddHook(h)
	}
}

// failPipelineOnce fails the first pipeline touching key without sending it.
type failPipelineOnce struct {
	key    string
	failed atomic.Bool
}

func (h *failPipelineOnce) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *failPipelineOnce) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h *failPipelineOnce) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, c := range cmds {
			if slices.Contains(c.Args(), any(h.key)) && h.failed.CompareAndSwap(false, true) {
				return errors.New("connection reset")
			}
		}
		return next(ctx, cmds)
	}
}

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
