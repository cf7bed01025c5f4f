package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/victornm/wordroyale/internal/api/roundrpc"
	"github.com/victornm/wordroyale/internal/config"
	"github.com/victornm/wordroyale/internal/poller"
	"github.com/victornm/wordroyale/internal/rules"
)

type Config struct {
	Server struct {
		// GRPCAddr is the game server's gRPC address, e.g. localhost:8081.
		GRPCAddr string
	}

	Auth struct {
		CronSecret string
	}

	Poller struct {
		Interval time.Duration
		// StartGames also triggers the scheduled multiplayer games.
		StartGames bool
	}

	Game struct {
		Schedule struct {
			Location string
			Hours    []int
		}
	}
}

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	conn, err := poller.Dial(c.Server.GRPCAddr, c.Auth.CronSecret)
	if err != nil {
		log.Fatalf("Dial game server failed: %v", err)
	}
	defer conn.Close()

	pc := poller.Config{
		Client:   roundrpc.NewRoundServiceClient(conn),
		Interval: c.Poller.Interval,
	}
	if c.Poller.StartGames {
		loc, err := time.LoadLocation(c.Game.Schedule.Location)
		if err != nil {
			log.Fatalf("Load schedule location failed: %v", err)
		}
		pc.Schedule = &rules.Schedule{Location: loc, Hours: c.Game.Schedule.Hours}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := poller.New(pc).Run(ctx); err != nil {
		log.Fatalf("Poller stopped: %v", err)
	}
}

func loadConfig() (Config, error) {
	var c Config
	c.Server.GRPCAddr = "localhost:8081"
	c.Poller.Interval = 5 * time.Second
	c.Poller.StartGames = true
	c.Game.Schedule.Location = "Europe/London"
	c.Game.Schedule.Hours = []int{9, 18}

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
