package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Portal/internal/adapters/http"
	"github.com/dkeye/Portal/internal/adapters/identity"
	"github.com/dkeye/Portal/internal/adapters/memstore"
	"github.com/dkeye/Portal/internal/adapters/portal"
	"github.com/dkeye/Portal/internal/adapters/postgres"
	"github.com/dkeye/Portal/internal/adapters/redisstate"
	"github.com/dkeye/Portal/internal/app"
	"github.com/dkeye/Portal/internal/app/orch"
	"github.com/dkeye/Portal/internal/config"
	"github.com/dkeye/Portal/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	rdb, err := redisstate.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	allocator, err := portal.NewAllocator(cfg.Redis.URL, cfg.Portal.Queue)
	if err != nil {
		return err
	}
	defer allocator.Close()

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	ids := identity.NewJWTResolver(cfg.Secret, cfg.TokenCacheTTL)
	reg := app.NewRegistry()
	bus := redisstate.NewRoomBus(rdb)
	o := &orch.Orchestrator{
		Registry:  reg,
		State:     redisstate.NewStateStore(rdb),
		Store:     store,
		Identity:  ids,
		Portals:   allocator,
		PortalBus: redisstate.NewPortalChannel(rdb),
		Bus:       bus,
		Policy:    app.SimplePolicy{},
		NodeID:    nodeID,
	}

	worker, err := portal.NewStatusWorker(cfg.Redis.URL, cfg.Portal.StatusQueue, cfg.Portal.Concurrency, o.SetPortalStatus)
	if err != nil {
		return err
	}

	reaper := app.NewReaper(reg, cfg.Heartbeat.Timeout, cfg.Heartbeat.ReapInterval)
	if err := reaper.Start(); err != nil {
		return err
	}
	defer reaper.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o, ids),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("node", nodeID).Msg("Portal server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return bus.Subscribe(gctx, o.OnRemoteBroadcast)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (core.Persistence, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	case "memory", "":
		log.Warn().Str("store", "memory").Msg("using in-process store, users must be seeded")
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
