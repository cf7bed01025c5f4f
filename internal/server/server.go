package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/wordroyale/internal/api"
	"github.com/victornm/wordroyale/internal/api/roundrpc"
	"github.com/victornm/wordroyale/internal/event"
	"github.com/victornm/wordroyale/internal/identity"
	"github.com/victornm/wordroyale/internal/leaderboard"
	"github.com/victornm/wordroyale/internal/lease"
	"github.com/victornm/wordroyale/internal/lifecycle"
	"github.com/victornm/wordroyale/internal/progression"
	"github.com/victornm/wordroyale/internal/rules"
	"github.com/victornm/wordroyale/internal/store"
	"github.com/victornm/wordroyale/internal/store/postgres"
	"github.com/victornm/wordroyale/internal/submission"
	"github.com/victornm/wordroyale/internal/telemetry"
	"github.com/victornm/wordroyale/internal/words"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Log struct {
		// Level is debug, info, warn or error.
		Level string
	}

	HTTP struct {
		Port int32

		CORS struct {
			AllowedOrigins []string
		}
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Store struct {
		// Driver is postgres or memory.
		Driver string
	}

	Auth struct {
		JWTSecret  string
		JWTIssuer  string
		CronSecret string
	}

	Game struct {
		Multiplayer    rules.Config
		Daily          rules.Config
		StrictSolution bool

		Words struct {
			// Dir overrides the embedded word lists.
			Dir string
		}

		Schedule struct {
			Location string
			Hours    []int
		}
	}
}

// DefaultConfig is the configuration before the file and the environment are applied.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Redis.Prefix = "wordroyale"
	c.Store.Driver = DriverPostgres
	c.Game.Multiplayer = rules.Multiplayer
	c.Game.Daily = rules.Daily
	c.Game.Schedule.Location = "Europe/London"
	c.Game.Schedule.Hours = []int{9, 18}
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
		store    store.Store
		words    *words.Supply
		schedule rules.Schedule
	}

	service struct {
		progression *progression.Service
		lifecycle   *lifecycle.Service
		submission  *submission.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := s.initGame(); err != nil {
		return fmt.Errorf("game: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case DriverMemory:
		slog.Warn("server: using the in-memory store, games are lost on restart")
		s.infra.store = store.NewMemory()
		return nil

	case DriverPostgres, "":
		db, err := s.connectPostgres()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		s.infra.postgres = db
		s.infra.store = postgres.New(db)
		return nil

	default:
		return fmt.Errorf("unknown driver %q", s.c.Store.Driver)
	}
}

func (s *Server) connectPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

func (s *Server) initGame() (err error) {
	if dir := s.c.Game.Words.Dir; dir != "" {
		s.infra.words, err = words.Dir(dir)
	} else {
		s.infra.words, err = words.Embedded()
	}
	if err != nil {
		return fmt.Errorf("words: %w", err)
	}

	loc, err := time.LoadLocation(s.c.Game.Schedule.Location)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	s.infra.schedule = rules.Schedule{Location: loc, Hours: s.c.Game.Schedule.Hours}

	return nil
}

func (s *Server) initService() {
	locker := lease.New(lease.Config{
		Redis:  s.infra.redis,
		Prefix: s.c.Redis.Prefix,
	})

	s.service.progression = progression.NewService(progression.Config{
		Store:    s.infra.store,
		EventBus: s.eb,
		Locker:   locker,
	})

	s.service.lifecycle = lifecycle.NewService(lifecycle.Config{
		Store:       s.infra.store,
		Words:       s.infra.words,
		EventBus:    s.eb,
		Locker:      locker,
		Schedule:    s.infra.schedule,
		Multiplayer: s.c.Game.Multiplayer,
		Daily:       s.c.Game.Daily,
	})

	s.service.submission = submission.NewService(submission.Config{
		Store:          s.infra.store,
		Words:          s.infra.words,
		Progression:    s.service.progression,
		StrictSolution: s.c.Game.StrictSolution,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(
		telemetry.GRPCServerInterceptor(),
		api.GRPCAuth(s.c.Auth.CronSecret),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, hs)

	a := api.New(api.Config{
		GRPC:        s.grpc,
		EventBus:    s.eb,
		Progression: s.service.progression,
		Lifecycle:   s.service.lifecycle,
		Submission:  s.service.submission,
		Leaderboard: s.service.leaderboard,
		Identity: identity.NewResolver(identity.Config{
			Secret: []byte(s.c.Auth.JWTSecret),
			Issuer: s.c.Auth.JWTIssuer,
		}),
		CronSecret:   s.c.Auth.CronSecret,
		Redis:        s.infra.redis,
		PubsubPrefix: s.c.Redis.Prefix,
	})
	a.Routes(e)
	hs.SetServingStatus(roundrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	handler := cors.New(cors.Options{
		AllowedOrigins: s.c.HTTP.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{identity.HeaderAuthorization, identity.HeaderSessionID, "Content-Type"},
		ExposedHeaders: []string{identity.HeaderSessionID},
	}).Handler(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		return s.infra.redis.Ping(ctx).Err()
	})
	if s.infra.postgres != nil {
		eg.Go(func() error {
			return s.infra.postgres.Ping(ctx)
		})
	}

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
