// Package event is the in-process bus connecting the game engine to its side effects:
// leaderboard aggregation and player notifications.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

var handled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wordroyale",
	Subsystem: "event",
	Name:      "handled_total",
	Help:      "Event handler runs by event name and result.",
}, []string{"event", "result"})

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Option func(*Bus)

// WithPoolSize bounds the number of in-flight runs of each handler.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		b.poolSize = n
	}
}

// WithTimeout bounds a single handler run.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.timeout = d
	}
}

type subscription struct {
	h    Handler
	pool chan struct{}
}

// Bus is an in-memory event bus. Handlers run asynchronously, each with its own pool
// so a slow handler does not hold back the others.
type Bus struct {
	poolSize int
	timeout  time.Duration
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	subs     map[string][]subscription
}

var _ Publisher = (*Bus)(nil)

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		poolSize: defaultPoolSize,
		timeout:  defaultTimeout,
		wg:       new(sync.WaitGroup),
		subs:     make(map[string][]subscription),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[name] = append(b.subs[name], subscription{
		h:    h,
		pool: make(chan struct{}, b.poolSize),
	})
}

// Publish an event
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs[e.Name()] {
		b.dispatch(ctx, s, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, e Event) {
	b.wg.Add(1)

	s.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				handled.WithLabelValues(e.Name(), "panic").Inc()
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-s.pool
			b.wg.Done()
		}()

		if err := s.h(ctx, e); err != nil {
			handled.WithLabelValues(e.Name(), "error").Inc()
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
			return
		}

		handled.WithLabelValues(e.Name(), "ok").Inc()
	}()
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
