package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/config"
	"github.com/vovakirdan/caserelay/internal/core"
	"github.com/vovakirdan/caserelay/internal/metrics"
	"github.com/vovakirdan/caserelay/internal/store"
	"github.com/vovakirdan/caserelay/internal/store/postgres"
	"github.com/vovakirdan/caserelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/caserelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	metrics         *metrics.Provider
	log             *zerolog.Logger
}

// OpenStore opens the configured message store and applies its schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		st, err = postgres.New(ctx, cfg.URL, logger)
	case "sqlite", "":
		st, err = sqlite.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	opts := core.Options{
		PingInterval:   cfg.Relay.PingInterval,
		PersistTimeout: cfg.Relay.PersistTimeout,
		SendQueueSize:  cfg.Relay.SendQueueSize,
	}

	var (
		hub            *core.Hub
		metricsHandler stdhttp.Handler
	)
	if cfg.Metrics.Enabled {
		provider, err := metrics.NewProvider()
		if err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		a.metrics = provider
		metricsHandler = provider.Handler()

		// Observed only on scrape, after hub is assigned below.
		relayMetrics, err := metrics.NewRelay(provider.Meter(), func() int { return hub.Sessions().Len() })
		if err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("init relay metrics: %w", err)
		}
		opts.Metrics = relayMetrics
	}

	hub = core.NewHub(st, opts, logger)
	a.hub = hub
	a.server = transporthttp.NewServer(hub, st, cfg, metricsHandler, logger)
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(ctx)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		stopHub()
		a.cleanup(shutdownCtx)
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup(ctx context.Context) {
	if a.metrics != nil {
		if err := a.metrics.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop metrics")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
