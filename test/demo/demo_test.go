//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/wordroyale/internal/api"
	"github.com/victornm/wordroyale/internal/api/roundrpc"
	"github.com/victornm/wordroyale/internal/identity"
	"github.com/victornm/wordroyale/internal/poller"
	"github.com/victornm/wordroyale/internal/words"
)

const (
	httpAddr = "http://localhost:8080"
	grpcAddr = "localhost:8081"
)

// TestBattleRoyale plays a three player game against a running server: two players
// solve round 1, only the first solves round 2 and wins.
func TestBattleRoyale(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dict, err := words.Embedded()
	require.NoError(t, err)

	var (
		wg      = new(sync.WaitGroup)
		players = make([]string, 3)
	)

	for i := range players {
		var e api.QueueEntry
		call(t, http.MethodPost, "/v1/queue/join", nil, &e)
		players[i] = e.SessionID
		t.Logf("Player %d joined as %s", i, e.SessionID)
	}

	subscribeGames(t, makeRedis(t), wg)

	var started api.StartGameResult
	call(t, http.MethodPost, "/v1/games/start", cronAuth(), &started)
	require.True(t, started.Started)
	t.Logf("Game %s started with %d players", started.GameID, started.PlayerCount)

	solversByRound := map[int][]string{
		1: players[:2],
		2: players[:1],
	}

	for round := 1; round <= 2; round++ {
		letters := waitForLetters(t, ctx, started.GameID, round)
		t.Logf("Round %d letters: %s", round, letters)

		var eg errgroup.Group
		for _, p := range solversByRound[round] {
			eg.Go(func() error {
				return solve(ctx, dict, p, letters)
			})
		}
		require.NoError(t, eg.Wait())

		var res api.ProcessResult
		call(t, http.MethodPost, fmt.Sprintf("/v1/games/%s/rounds/end", started.GameID), cronAuth(), &res)
		t.Logf("Round %d closed: eliminated=%d remaining=%d status=%s", round, res.EliminatedCount, res.RemainingPlayers, res.GameStatus)
	}

	var gs api.GameState
	call(t, http.MethodGet, "/v1/games/"+started.GameID, session(players[0]), &gs)
	require.Equal(t, "COMPLETED", gs.Status)
	require.NotNil(t, gs.Me)
	require.Equal(t, "WINNER", gs.Me.Status)

	processOverGRPC(t, ctx)

	time.Sleep(time.Second)
	var lb api.Leaderboard
	call(t, http.MethodGet, "/v1/leaderboard", nil, &lb)
	t.Logf("Leaderboard:\n%s", formatLeaderboard(lb))

	wg.Wait()
}

func solve(ctx context.Context, dict *words.Supply, player, letters string) error {
	for _, guess := range dict.Anagrams(letters) {
		var res api.SubmitResult
		if err := post(ctx, "/v1/submissions", session(player), api.SubmitRequest{Guess: guess}, &res); err != nil {
			return fmt.Errorf("player %s: %w", player, err)
		}
		if res.Correct {
			return nil
		}
		time.Sleep(time.Second)
	}

	return fmt.Errorf("player %s: no anagram of %s accepted", player, letters)
}

func waitForLetters(t *testing.T, ctx context.Context, gameID string, round int) string {
	for {
		var gs api.GameState
		call(t, http.MethodGet, "/v1/games/"+gameID, nil, &gs)
		if gs.CurrentRound == round && gs.Round.Letters != "" {
			return gs.Round.Letters
		}

		select {
		case <-ctx.Done():
			t.Fatalf("round %d did not start", round)
		case <-time.After(time.Second):
		}
	}
}

func processOverGRPC(t *testing.T, ctx context.Context) {
	conn, err := poller.Dial(grpcAddr, cronSecret())
	require.NoError(t, err)
	defer conn.Close()

	resp, err := roundrpc.NewRoundServiceClient(conn).ProcessAll(ctx, &structpb.Struct{})
	require.NoError(t, err)
	t.Logf("gRPC ProcessAll: %v", resp.AsMap())
}

func call(t *testing.T, method, path string, headers map[string]string, out any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, httpAddr+path, http.NoBody)
	require.NoError(t, err)
	require.NoError(t, do(req, headers, out))
}

func post(ctx context.Context, path string, headers map[string]string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpAddr+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return do(req, headers, out)
}

func do(req *http.Request, headers map[string]string, out any) error {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, body.String())
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func cronSecret() string {
	if secret := os.Getenv("AUTH_CRONSECRET"); secret != "" {
		return secret
	}
	return "change-me"
}

func cronAuth() map[string]string {
	return map[string]string{identity.HeaderAuthorization: "Bearer " + cronSecret()}
}

func session(id string) map[string]string {
	return map[string]string{identity.HeaderSessionID: id}
}

func subscribeGames(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, "wordroyale:game:*")
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			t.Logf("%s: %s %s", msg.Channel, n.Event, n.Data)
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	t.Cleanup(cancel)

	sub := rc.PSubscribe(ctx, pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(l api.Leaderboard) string {
	var s string
	for _, e := range l.Entries {
		s += fmt.Sprintf("%d. %s: %s\n", e.Rank, e.Player, e.Score)
	}
	return s
}
