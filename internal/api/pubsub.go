package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/wordroyale/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank   int    `json:"rank"`
		Player string `json:"player"`
		Score  string `json:"score"`
	}

	GameStarted struct {
		GameID      string `json:"game_id"`
		Mode        string `json:"mode"`
		PlayerCount int    `json:"player_count"`
	}

	RoundAdvanced struct {
		GameID           string `json:"game_id"`
		PreviousRound    int    `json:"previous_round"`
		NextRound        int    `json:"next_round"`
		EliminatedCount  int    `json:"eliminated_count"`
		RemainingPlayers int    `json:"remaining_players"`
	}

	GameCompleted struct {
		GameID string  `json:"game_id"`
		Mode   string  `json:"mode"`
		Winner *string `json:"winner"`
	}

	// PlayerOutcome is sent to each player of a completed game on their own channel.
	PlayerOutcome struct {
		GameID          string `json:"game_id"`
		IsWinner        bool   `json:"is_winner"`
		RoundsCompleted int    `json:"rounds_completed"`
		FinalRound      *int   `json:"final_round,omitempty"`
	}
)

func (a *API) PublishGameStarted(ctx context.Context, e domain.EventGameStarted) error {
	return a.publishNotification(ctx, a.gameChannel(e.Game.ID), e.Name(), GameStarted{
		GameID:      e.Game.ID,
		Mode:        string(e.Game.Mode),
		PlayerCount: e.PlayerCount,
	})
}

func (a *API) PublishRoundAdvanced(ctx context.Context, e domain.EventRoundAdvanced) error {
	return a.publishNotification(ctx, a.gameChannel(e.GameID), e.Name(), RoundAdvanced{
		GameID:           e.GameID,
		PreviousRound:    e.PreviousRound,
		NextRound:        e.NextRound,
		EliminatedCount:  e.EliminatedCount,
		RemainingPlayers: e.RemainingPlayers,
	})
}

// PublishGameCompleted notifies the game channel, then every player on their own channel.
func (a *API) PublishGameCompleted(ctx context.Context, e domain.EventGameCompleted) error {
	if err := a.publishNotification(ctx, a.gameChannel(e.Game.ID), e.Name(), GameCompleted{
		GameID: e.Game.ID,
		Mode:   string(e.Game.Mode),
		Winner: e.Winner,
	}); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, p := range e.Players {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.playerChannel(p.Identity.Key()), e.Name(), PlayerOutcome{
				GameID:          e.Game.ID,
				IsWinner:        p.IsWinner,
				RoundsCompleted: p.RoundsCompleted,
				FinalRound:      p.FinalRound,
			})
		})
	}

	return eg.Wait()
}

func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	return a.publishNotification(ctx, a.leaderboardChannel(), e.Name(), toLeaderboard(&e.Leaderboard))
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) gameChannel(gameID string) string {
	return fmt.Sprintf("%s:game:%s", a.prefix, gameID)
}

func (a *API) playerChannel(player string) string {
	return fmt.Sprintf("%s:player:%s", a.prefix, player)
}

func (a *API) leaderboardChannel() string {
	return fmt.Sprintf("%s:leaderboard", a.prefix)
}

func toLeaderboard(l *domain.Leaderboard) Leaderboard {
	out := Leaderboard{Entries: make([]LeaderboardEntry, 0, len(l.Entries))}
	for _, entry := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
			Rank:   entry.Rank,
			Player: entry.Player,
			Score:  formatScore(entry.Score),
		})
	}

	return out
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
