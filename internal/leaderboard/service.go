// Package leaderboard aggregates finished games into per-player stats and the world
// ranking, kept in redis.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/errors"
	"github.com/victornm/wordroyale/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	countedTTL      = 24 * time.Hour
	maxTxRetries    = 5

	// MinGamesForRanking is the number of finished games before a player is ranked.
	MinGamesForRanking = 5
	DefaultLimit       = 100
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		return s.RecordGame(ctx, e.(domain.EventGameCompleted))
	})

	return s
}

// RecordGame adds a completed game to the stats of each of its players. Each player
// is counted once per game even if the event is delivered again, including after a
// delivery that failed part way.
func (s *Service) RecordGame(ctx context.Context, e domain.EventGameCompleted) error {
	var (
		recorded int
		errs     []error
	)
	for _, p := range e.Players {
		ok, err := s.recordPlayer(ctx, e.Game.ID, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("record player %s: %w", p.Identity.Key(), err))
			continue
		}
		if ok {
			recorded++
		}
	}

	if recorded > 0 {
		if err := s.schedulePublishLeaderboard(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// recordPlayer applies one game to the player's stats and marks it counted in the same
// transaction. It reports false when the game was already counted for the player.
func (s *Service) recordPlayer(ctx context.Context, gameID string, p domain.PlayerResult) (bool, error) {
	key := s.statsKey(p.Identity.Key())
	marker := s.countedKey(gameID, p.Identity.Key())
	wins := 0
	if p.IsWinner {
		wins = 1
	}

	for range maxTxRetries {
		recorded := false
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, marker).Result()
			if err != nil {
				return fmt.Errorf("exists: %w", err)
			}
			if n > 0 {
				return nil
			}

			h, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			st, err := parseTally(h)
			if err != nil {
				return err
			}
			st.games++
			st.wins += int64(wins)
			st.rounds += int64(p.RoundsCompleted)
			st.roundsSq += int64(p.RoundsCompleted * p.RoundsCompleted)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HIncrBy(ctx, key, "games", 1)
				pipe.HIncrBy(ctx, key, "wins", int64(wins))
				pipe.HIncrBy(ctx, key, "rounds", int64(p.RoundsCompleted))
				pipe.HIncrBy(ctx, key, "rounds_sq", int64(p.RoundsCompleted*p.RoundsCompleted))
				if st.games >= MinGamesForRanking {
					pipe.ZAdd(ctx, s.leaderboardKey(), redis.Z{
						Score:  st.score().InexactFloat64(),
						Member: p.Identity.Key(),
					})
				}
				pipe.Set(ctx, marker, 1, countedTTL)
				return nil
			})
			if err != nil {
				return fmt.Errorf("update stats: %w", err)
			}

			recorded = true
			return nil
		}, marker, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return recorded, err
	}

	return false, fmt.Errorf("update stats: %w", redis.TxFailedErr)
}

// GetLeaderboard returns the best ranked players. Equal scores share a rank.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) (*domain.Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("get leaderboard: %w", err))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		rank := i + 1
		if i > 0 && z.Score == res[i-1].Score {
			rank = entries[i-1].Rank
		}

		entries = append(entries, domain.LeaderboardEntry{
			Rank:   rank,
			Player: z.Member.(string),
			Score:  z.Score,
		})
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

func (s *Service) GetPlayerStats(ctx context.Context, id domain.PlayerIdentity) (*domain.PlayerStats, error) {
	if id == nil {
		return nil, errors.ErrInvalidIdentity.With(errors.WithMessagef("player identity is required"))
	}

	h, err := s.redis.HGetAll(ctx, s.statsKey(id.Key())).Result()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("get stats: %w", err))
	}

	st, err := parseTally(h)
	if err != nil {
		return nil, errors.Internal(err)
	}

	out := &domain.PlayerStats{
		Player:          id.Key(),
		GamesPlayed:     int(st.games),
		Wins:            int(st.wins),
		RoundsCompleted: int(st.rounds),
		Score:           st.score().InexactFloat64(),
	}
	if st.games > 0 {
		out.AverageRounds = float64(st.rounds) / float64(st.games)
	}

	return out, nil
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per interval;
// a game completing inside the interval is picked up by the next publish.
func (s *Service) schedulePublishLeaderboard(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.publishKey(), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, DefaultLimit)
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})
	slog.DebugContext(ctx, "leaderboard: published", "entries", len(l.Entries))
	return nil
}

func (s *Service) leaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) publishKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}

func (s *Service) statsKey(player string) string {
	return fmt.Sprintf("%s:stats:%s", s.prefix, player)
}

func (s *Service) countedKey(gameID, player string) string {
	return fmt.Sprintf("%s:leaderboard:counted:%s:%s", s.prefix, gameID, player)
}

// tally is the running totals kept per player.
type tally struct {
	games, wins, rounds, roundsSq int64
}

func parseTally(h map[string]string) (tally, error) {
	var t tally
	for field, dst := range map[string]*int64{
		"games":     &t.games,
		"wins":      &t.wins,
		"rounds":    &t.rounds,
		"rounds_sq": &t.roundsSq,
	} {
		v, ok := h[field]
		if !ok {
			continue
		}

		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return tally{}, fmt.Errorf("parse stats field %s: %w", field, err)
		}
		*dst = n
	}

	return t, nil
}

var (
	weightWinRate     = decimal.RequireFromString("0.4")
	weightAvgRounds   = decimal.RequireFromString("0.3")
	weightWins        = decimal.RequireFromString("0.2")
	weightConsistency = decimal.RequireFromString("0.1")
	one               = decimal.NewFromInt(1)
)

// score is the world rank score in [0, 1], zero until the player has enough games.
func (t tally) score() decimal.Decimal {
	if t.games < MinGamesForRanking {
		return decimal.Zero
	}

	games := decimal.NewFromInt(t.games)
	winRate := decimal.NewFromInt(t.wins).Div(games)
	avg := decimal.NewFromInt(t.rounds).Div(games)
	avgNorm := decimal.Min(avg.Div(decimal.NewFromInt(10)), one)
	winsNorm := decimal.Min(decimal.NewFromFloat(math.Log10(float64(t.wins+1))/math.Log10(101)), one)

	return winRate.Mul(weightWinRate).
		Add(avgNorm.Mul(weightAvgRounds)).
		Add(winsNorm.Mul(weightWins)).
		Add(t.consistency().Mul(weightConsistency)).
		Round(6)
}

// consistency is 1 for identical results per game, falling to 0 at a standard
// deviation of 5 rounds.
func (t tally) consistency() decimal.Decimal {
	if t.games < 2 {
		return decimal.RequireFromString("0.5")
	}

	n := float64(t.games)
	mean := float64(t.rounds) / n
	variance := max(float64(t.roundsSq)/n-mean*mean, 0)

	return decimal.Max(one.Sub(decimal.NewFromFloat(math.Sqrt(variance)/5)), decimal.Zero)
}
