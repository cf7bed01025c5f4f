package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/event"
)

var (
	started   = domain.EventGameStarted{Game: domain.Game{ID: "g1"}, PlayerCount: 3}
	advanced  = domain.EventRoundAdvanced{GameID: "g1", PreviousRound: 1, NextRound: 2, EliminatedCount: 1, RemainingPlayers: 2}
	completed = domain.EventGameCompleted{Game: domain.Game{ID: "g1", Status: domain.GameStatusCompleted}}
)

func TestBus_Publish(t *testing.T) {
	type handlers map[string][]string // handler -> subscribed event names

	tests := map[string]struct {
		handlers  handlers
		published []event.Event
		want      map[string][]event.Event
	}{
		"handler only receives the events it subscribed to": {
			handlers:  handlers{"leaderboard": {domain.EventNameGameCompleted}},
			published: []event.Event{started, advanced, completed},
			want: map[string][]event.Event{
				"leaderboard": {completed},
			},
		},

		"every publish is delivered": {
			handlers:  handlers{"notifier": {domain.EventNameRoundAdvanced}},
			published: []event.Event{advanced, advanced},
			want: map[string][]event.Event{
				"notifier": {advanced, advanced},
			},
		},

		"event fans out to every subscriber": {
			handlers: handlers{
				"leaderboard": {domain.EventNameGameCompleted},
				"notifier":    {domain.EventNameGameCompleted},
				"audit":       {domain.EventNameGameCompleted},
			},
			published: []event.Event{completed},
			want: map[string][]event.Event{
				"leaderboard": {completed},
				"notifier":    {completed},
				"audit":       {completed},
			},
		},

		"handlers with overlapping subscriptions": {
			handlers: handlers{
				"leaderboard": {domain.EventNameGameCompleted},
				"notifier":    {domain.EventNameGameStarted, domain.EventNameRoundAdvanced, domain.EventNameGameCompleted},
				"metrics":     {domain.EventNameGameStarted},
			},
			published: []event.Event{started, advanced, advanced, completed},
			want: map[string][]event.Event{
				"leaderboard": {completed},
				"notifier":    {started, advanced, advanced, completed},
				"metrics":     {started},
			},
		},

		"no subscriber": {
			published: []event.Event{started},
			want:      map[string][]event.Event{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				mu       sync.Mutex
				received = make(map[string][]event.Event)
			)

			b := event.NewBus()
			for h, names := range tt.handlers {
				for _, n := range names {
					b.Subscribe(n, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						received[h] = append(received[h], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range tt.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			assert.Len(t, received, len(tt.want))
			for h, want := range tt.want {
				assert.ElementsMatch(t, want, received[h], h)
			}
		})
	}
}

func TestBus_HandlerIsolation(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(1), event.WithTimeout(time.Second))

	var (
		mu       sync.Mutex
		received []string
		release  = make(chan struct{})
	)

	b.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		panic("boom")
	})
	b.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		<-release
		return nil
	})
	b.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		return errors.New("redis down")
	})
	b.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		received = append(received, e.(domain.EventGameCompleted).Game.ID)
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), completed)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond, "a blocked, failing or panicking handler should not hold back other subscribers")

	close(release)
	b.Stop()
	assert.Equal(t, []string{"g1"}, received)
}

func TestBus_HandlerTimeout(t *testing.T) {
	b := event.NewBus(event.WithTimeout(20 * time.Millisecond))

	done := make(chan error, 1)
	b.Subscribe(domain.EventNameRoundAdvanced, func(ctx context.Context, e event.Event) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.Publish(ctx, advanced)
	cancel()
	b.Stop()

	assert.ErrorIs(t, <-done, context.DeadlineExceeded, "handler outlives the publisher's context until its own timeout")
}
