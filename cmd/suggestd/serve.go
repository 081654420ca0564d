package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ropa-suggestions/internal/config"
	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/domain/ports/repository"
	"ropa-suggestions/internal/infra/api"
	pg "ropa-suggestions/internal/infra/db/postgres"
	"ropa-suggestions/internal/infra/logging"
	"ropa-suggestions/internal/infra/memory"
	"ropa-suggestions/internal/infra/metrics"
	"ropa-suggestions/internal/infra/notify"
	red "ropa-suggestions/internal/infra/redis"
	"ropa-suggestions/internal/infra/ropaapi"
	"ropa-suggestions/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const devTenant = "dev-tenant"

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the suggestion orchestrator and its projection API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] serving suggestions from an in-process fake backend")
	}

	// ---- Backend ----
	backend, tenant, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// ---- Redis (optional unless it backs the declined store) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
	}

	// ---- Declined job store ----
	declined, closeStore, err := openDeclinedStore(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---- Orchestrator ----
	hub := notify.NewHub(logger)
	orch := usecase.NewSuggestionOrchestrator(backend, declined, hub, usecase.SuggestionOptions{
		PollInterval:    cfg.Suggestions.PollInterval,
		MaxPollAttempts: cfg.Suggestions.MaxPollAttempts,
		RequestTimeout:  cfg.Suggestions.RequestTimeout,
		Workers:         cfg.Suggestions.Workers,
	}, logger)
	defer orch.Close()

	// ---- Projection API ----
	var limiter api.Limiter
	if redisClient != nil {
		limiter = red.NewRateLimiter(redisClient)
	}
	srv := api.NewServer(orch, hub, limiter, api.Options{
		APIKey:           cfg.API.APIKey,
		DefaultTenant:    tenant,
		RequestTimeout:   cfg.API.RequestTimeout,
		SuggestAllLimit:  cfg.API.SuggestAllLimit,
		SuggestAllWindow: cfg.API.SuggestAllWindow,
		AllowedOrigins:   cfg.API.AllowedOrigins,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("tenant", tenant).Msg("projection API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	orch.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}

// openBackend returns the ROPA client and the tenant it serves. In dev mode
// the client talks to a fake backend on a loopback port.
func openBackend(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.SuggestionJobBackend, string, error) {
	baseURL, tenant := cfg.Backend.BaseURL, cfg.Backend.TenantID
	if cfg.Runtime.Dev && baseURL == "" {
		opts := []ropaapi.FakeOption{ropaapi.WithStepOnRead()}
		if cfg.Backend.Token != "" {
			opts = append(opts, ropaapi.WithToken(cfg.Backend.Token))
		}
		fake := ropaapi.NewFakeServer(opts...)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, "", fmt.Errorf("fake backend: %w", err)
		}
		fakeSrv := &http.Server{Handler: fake.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() { _ = fakeSrv.Serve(ln) }()
		context.AfterFunc(ctx, func() { _ = fakeSrv.Close() })

		baseURL = "http://" + ln.Addr().String()
		logger.Info().Str("base_url", baseURL).Msg("fake backend started")
	}
	if tenant == "" {
		tenant = devTenant
	}
	client, err := ropaapi.NewClient(baseURL, cfg.Backend.Token, cfg.Backend.Timeout)
	if err != nil {
		return nil, "", fmt.Errorf("backend: %w", err)
	}
	return client, tenant, nil
}

func openDeclinedStore(ctx context.Context, cfg *config.Config, redisClient *red.Client, logger *zerolog.Logger) (repository.DeclinedJobRepository, func(), error) {
	switch cfg.DeclinedStore.Driver {
	case config.DeclinedStoreRedis:
		if redisClient == nil {
			return nil, nil, errors.New("declined store: redis is not configured")
		}
		logger.Info().Dur("ttl", cfg.DeclinedStore.TTL).Msg("declined jobs stored in redis")
		return red.NewDeclinedJobStore(redisClient, cfg.DeclinedStore.TTL), func() {}, nil

	case config.DeclinedStorePostgres:
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		store := pg.NewDeclinedJobStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		statsCtx, cancel := context.WithCancel(ctx)
		go pg.ReportPoolStats(statsCtx, pool, 15*time.Second)
		logger.Info().Msg("declined jobs stored in postgres")
		return store, func() { cancel(); pool.Close() }, nil

	default:
		logger.Warn().Msg("declined jobs kept in memory; they are lost on restart")
		return memory.NewDeclinedJobStore(), func() {}, nil
	}
}
