package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/http/handlers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/http/httpapi"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/jobstore"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/notify"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/providers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reaper"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/reconcile"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/storage"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, archive, closeStore, err := newJobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize job store")
	}
	defer closeStore()

	rmap, err := newReconcileMap(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize reconciliation map")
	}

	uploads, err := newUploader(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize media storage")
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.PushEndpoint != "" {
		notifier = notify.NewHTTPNotifier(cfg.PushEndpoint, cfg.PushAPIKey, nil)
	}

	registry := providers.NewRegistry(cfg, &logger, nil)
	auth := &webhook.Authenticator{
		Token:     cfg.WebhookToken,
		FalSecret: cfg.FalWebhookSecret,
		Required:  cfg.WebhookAuthRequired,
		Logger:    &logger,
	}

	app := handlers.NewApp(store, archive, rmap, registry, auth, notifier, uploads, cfg, &logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	// The in-process sweep keeps single-instance deployments healthy; the
	// standalone reaper binary covers multi-instance ones.
	sweeper := reaper.New(store, archive, rmap, cfg, &logger)
	go sweeper.Run(ctx, cfg.SweepInterval)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newJobStore selects the persistence backend from configuration.
func newJobStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (jobstore.Store, jobstore.Archive, func(), error) {
	switch cfg.JobStoreBackend {
	case "supabase":
		store, err := jobstore.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() {}, nil
	case "memory":
		store := jobstore.NewMemoryStore()
		return store, store, func() {}, nil
	default:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		store := jobstore.NewPostgresStore(runner)
		return store, store, pool.Close, nil
	}
}

func newReconcileMap(cfg *infra.Config) (reconcile.Map, error) {
	if cfg.RedisURL == "" {
		return reconcile.NewMemoryMap(), nil
	}
	return reconcile.NewRedisMap(cfg.RedisURL)
}

func newUploader(cfg *infra.Config, logger *infra.Logger) (storage.Uploader, error) {
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageBucket, nil, logger)
	}
	return storage.NewFileStore(cfg.StoragePath)
}
