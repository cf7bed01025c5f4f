package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/wordroyale/internal/api/roundrpc"
	"github.com/victornm/wordroyale/internal/domain"
	"github.com/victornm/wordroyale/internal/event"
	"github.com/victornm/wordroyale/internal/identity"
	"github.com/victornm/wordroyale/internal/leaderboard"
	"github.com/victornm/wordroyale/internal/lifecycle"
	"github.com/victornm/wordroyale/internal/progression"
	"github.com/victornm/wordroyale/internal/submission"
)

type Config struct {
	GRPC        *grpc.Server
	EventBus    *event.Bus
	Progression *progression.Service
	Lifecycle   *lifecycle.Service
	Submission  *submission.Service
	Leaderboard *leaderboard.Service
	Identity    *identity.Resolver
	// CronSecret authorizes the trigger and operator endpoints.
	CronSecret   string
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ps  *progression.Service
	lcs *lifecycle.Service
	ss  *submission.Service
	ls  *leaderboard.Service
	ids *identity.Resolver

	cronSecret string

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ps:         c.Progression,
		lcs:        c.Lifecycle,
		ss:         c.Submission,
		ls:         c.Leaderboard,
		ids:        c.Identity,
		cronSecret: c.CronSecret,
		redis:      c.Redis,
		prefix:     c.PubsubPrefix,
	}

	// gRPC APIs
	if c.GRPC != nil {
		roundrpc.RegisterRoundServiceServer(c.GRPC, a)
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameGameStarted, func(ctx context.Context, e event.Event) error {
		return a.PublishGameStarted(ctx, e.(domain.EventGameStarted))
	})
	c.EventBus.Subscribe(domain.EventNameRoundAdvanced, func(ctx context.Context, e event.Event) error {
		return a.PublishRoundAdvanced(ctx, e.(domain.EventRoundAdvanced))
	})
	c.EventBus.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		return a.PublishGameCompleted(ctx, e.(domain.EventGameCompleted))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

// Routes registers the HTTP endpoints.
func (a *API) Routes(r gin.IRouter) {
	v1 := r.Group("/v1")

	cron := v1.Group("", requireSecret(a.cronSecret))
	cron.POST("/rounds/process", a.processCurrent)
	cron.POST("/rounds/process-all", a.processAll)
	cron.POST("/games/start", a.startGame)
	cron.POST("/games/:id/rounds/end", a.forceEndRound)

	v1.POST("/submissions", a.identify(identityRequired), a.submit)
	v1.GET("/games/current", a.identify(identityOptional), a.currentGame)
	v1.GET("/games/:id", a.identify(identityOptional), a.gameState)
	v1.POST("/games/:id/abandon", a.identify(identityRequired), a.abandon)
	v1.POST("/daily/start", a.identify(identityMint), a.startDaily)

	v1.GET("/queue", a.identify(identityOptional), a.queueStatus)
	v1.POST("/queue/join", a.identify(identityMint), a.joinQueue)
	v1.POST("/queue/leave", a.identify(identityRequired), a.leaveQueue)

	v1.GET("/leaderboard", a.leaderboard)
	v1.GET("/players/me/stats", a.identify(identityRequired), a.playerStats)
}
