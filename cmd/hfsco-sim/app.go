package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/cyberinferno/go-hfsco/audiobus"
	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/config"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/peercache"
	"github.com/cyberinferno/go-hfsco/registry"
	"github.com/cyberinferno/go-hfsco/simctl"
)

const serviceName = "hfsco-sim"

// Set at compile time.
var Version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:                 serviceName,
		Usage:                "Simulate a Hands-Free SCO/eSCO audio session.",
		Version:              Version,
		EnableBashCompletion: true,
		Suggest:              true,
		Flags:                config.Flags(),
		Action: func(cliCtx *cli.Context) error {
			cfg, err := config.Load(cliCtx.String(config.FlagConfig), cliCtx)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}

			printError(err)
		},
	}
}

// stack is everything a scenario runs against.
type stack struct {
	cfg  *config.Config
	bus  *audiobus.Bus
	ctrl *simctl.Controller
	mgr  *registry.Manager
	dir  *peercache.Directory
}

func run(ctx context.Context, cfg *config.Config) error {
	level, _ := logger.ParseLevel(cfg.Log.Level)
	log := logger.NewConsoleLogger(os.Stderr, serviceName, level)
	defer log.Close()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	version, _ := cfg.Peer.HFPVersion()
	dir := peercache.NewDirectory(store, func(context.Context, bdaddr.Address) (uint16, error) {
		// Stands in for an SDP query of the peer's profile record.
		return version, nil
	}, cfg.Cache.TTL, log)

	bus := audiobus.New(0, log)
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Close()
	go func() {
		for n := range sub.C {
			printNotification(n)
		}
	}()

	ctrl := simctl.New(simctl.Options{
		Latency:  cfg.Sim.Latency,
		FailESCO: cfg.Sim.FailESCO,
		Logger:   log,
	})
	defer ctrl.Close()

	mgr, err := registry.New(registry.Config{
		MaxSessions:     cfg.Session.Max,
		QueueSize:       cfg.Session.QueueSize,
		Codec:           cfg.Codec(),
		FallbackVersion: version,
		Controller:      ctrl,
		Arbiter:         bus,
		Directory:       dir,
		OnAudio:         printAudio,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	st := &stack{cfg: cfg, bus: bus, ctrl: ctrl, mgr: mgr, dir: dir}
	scenarioErr := st.scenario(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil && scenarioErr == nil {
		scenarioErr = err
	}

	return scenarioErr
}

func newStore(ctx context.Context, cfg *config.Config) (peercache.Store[uint16], func(), error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Cache.RedisAddr, err)
		}

		return peercache.NewRedisStore[uint16](client, serviceName+":"), func() { _ = client.Close() }, nil
	default:
		return peercache.NewMemoryStore[uint16](cfg.Cache.TTL, time.Minute), func() {}, nil
	}
}
