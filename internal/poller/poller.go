// Package poller is the recurring trigger of the game server: it asks the server to
// process due rounds on an interval and to start the scheduled multiplayer games.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/wordroyale/internal/api/roundrpc"
	"github.com/victornm/wordroyale/internal/rules"
)

const (
	defaultInterval = 5 * time.Second
	requestTimeout  = 30 * time.Second
)

type Config struct {
	Client   roundrpc.RoundServiceClient
	Interval time.Duration
	// Schedule enables starting multiplayer games; nil only processes rounds.
	Schedule *rules.Schedule
	Now      func() time.Time
}

type Poller struct {
	client   roundrpc.RoundServiceClient
	interval time.Duration
	schedule *rules.Schedule
	now      func() time.Time

	nextGame time.Time
}

// Dial connects to the game server's gRPC address, sending secret with every call.
func Dial(addr, secret string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(roundrpc.SecretCredentials{Secret: secret, Insecure: true}),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return conn, nil
}

func New(c Config) *Poller {
	p := &Poller{
		client:   c.Client,
		interval: c.Interval,
		schedule: c.Schedule,
		now:      c.Now,
	}

	if p.interval <= 0 {
		p.interval = defaultInterval
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.schedule != nil {
		p.nextGame = p.schedule.Next(p.now())
	}

	return p
}

// Run ticks until ctx is done. A failed tick is logged and retried on the next one.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	slog.InfoContext(ctx, "poller: started", "interval", p.interval, "next_game", p.nextGame)
	for {
		if err := p.Tick(ctx); err != nil {
			slog.ErrorContext(ctx, "poller: tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

type processAllResponse struct {
	Processed int `json:"processed"`
	Failed    []struct {
		GameID string `json:"game_id"`
		Error  struct {
			Code    int    `json:"code"`
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"failed"`
}

type startGameResponse struct {
	Started     bool   `json:"started"`
	GameID      string `json:"game_id"`
	PlayerCount int    `json:"player_count"`
}

// Tick starts the scheduled game when it is due, then processes every due round.
func (p *Poller) Tick(ctx context.Context) error {
	if p.schedule != nil && !p.now().Before(p.nextGame) {
		var res startGameResponse
		if err := p.call(ctx, p.client.StartGame, &res); err != nil {
			return fmt.Errorf("start game: %w", err)
		}

		slog.InfoContext(ctx, "poller: scheduled game triggered",
			"started", res.Started, "game_id", res.GameID, "players", res.PlayerCount)
		p.nextGame = p.schedule.Next(p.now())
	}

	var res processAllResponse
	if err := p.call(ctx, p.client.ProcessAll, &res); err != nil {
		return fmt.Errorf("process rounds: %w", err)
	}
	if res.Processed > 0 {
		slog.InfoContext(ctx, "poller: rounds processed", "count", res.Processed)
	}
	for _, f := range res.Failed {
		slog.WarnContext(ctx, "poller: game not processed",
			"game_id", f.GameID, "code", f.Error.Code, "reason", f.Error.Reason, "error", f.Error.Message)
	}

	return nil
}

type rpc func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (p *Poller) call(ctx context.Context, method rpc, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := method(ctx, &structpb.Struct{})
	if err != nil {
		return err
	}

	b, err := protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
