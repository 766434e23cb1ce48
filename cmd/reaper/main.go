// The reaper binary runs the stuck-job sweep on its own schedule, for
// deployments where the API serves from multiple instances and the sweep
// should run exactly once.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/jobstore"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reaper"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "reaper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store jobstore.Store
	var archive jobstore.Archive
	switch cfg.JobStoreBackend {
	case "supabase":
		s, err := jobstore.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize job store")
		}
		store, archive = s, s
	case "memory":
		s := jobstore.NewMemoryStore()
		store, archive = s, s
	default:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		s := jobstore.NewPostgresStore(infra.NewSQLRunner(pool, logger))
		store, archive = s, s
	}

	var rmap reconcile.Map
	if cfg.RedisURL != "" {
		rmap, err = reconcile.NewRedisMap(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
	} else {
		rmap = reconcile.NewMemoryMap()
	}

	sweeper := reaper.New(store, archive, rmap, cfg, &logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	logger.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("stuck_timeout", cfg.StuckTimeout).
		Msg("reaper started")
	sweeper.Run(ctx, cfg.SweepInterval)
	logger.Info().Msg("reaper stopped")
}
