package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/resource-api/internal/api/middleware"
	"github.com/phrazzld/resource-api/internal/config"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/identity"
	"github.com/phrazzld/resource-api/internal/metrics"
	"github.com/phrazzld/resource-api/internal/platform/filestore"
	"github.com/phrazzld/resource-api/internal/platform/mongostore"
	"github.com/phrazzld/resource-api/internal/platform/sqldoc"
	"github.com/phrazzld/resource-api/internal/repository"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/phrazzld/resource-api/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	adapter  store.Adapter
	registry *domain.Registry
	repos    []*repository.Repository

	identities *identity.Directory
	tokens     auth.TokenService
	gate       *auth.Gate

	metricsRegistry *prometheus.Registry
	metrics         *metrics.Collector
	limiter         *middleware.RateLimiter
}

// newApplication opens the configured storage and wires every component on
// top of it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	registry, err := domain.NewRegistry(domain.DefaultKinds()...)
	if err != nil {
		return nil, fmt.Errorf("failed to build kind registry: %w", err)
	}

	adapter, err := openAdapter(ctx, cfg, seedsFor(registry), logger)
	if err != nil {
		return nil, err
	}

	app, err := assembleApplication(cfg, logger, registry, adapter)
	if err != nil {
		_ = adapter.Close()
		return nil, err
	}
	return app, nil
}

// assembleApplication wires services over an already opened adapter.
func assembleApplication(
	cfg *config.Config,
	logger *slog.Logger,
	registry *domain.Registry,
	adapter store.Adapter,
) (*application, error) {
	app := &application{
		config:          cfg,
		logger:          logger,
		registry:        registry,
		metricsRegistry: prometheus.NewRegistry(),
	}
	app.metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewCollector(app.metricsRegistry)
	app.adapter = metrics.InstrumentAdapter(adapter, app.metrics)

	var err error
	app.tokens, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	logger.Info("token service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.identities, err = identity.NewDirectory(app.adapter, auth.NewBcrypt(cfg.Auth.BCryptCost), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity directory: %w", err)
	}
	app.gate = auth.NewGate(app.tokens, app.identities, logger)

	for _, kind := range registry.All() {
		app.repos = append(app.repos, repository.New(app.adapter, kind, logger))
	}

	if cfg.RateLimit.Enabled() {
		app.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	logger.Info("application initialized",
		"storage_driver", cfg.Storage.Driver,
		"kinds", len(app.repos))
	return app, nil
}

// openAdapter selects the storage adapter named by the configuration.
func openAdapter(
	ctx context.Context,
	cfg *config.Config,
	seeds map[string][]domain.Record,
	logger *slog.Logger,
) (store.Adapter, error) {
	switch cfg.Storage.Driver {
	case config.DriverFile:
		fs, err := filestore.New(cfg.Storage.DataDir, seeds, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		logger.Info("using file storage", "data_dir", cfg.Storage.DataDir)
		return fs, nil

	case config.DriverPostgres, config.DriverSQLite:
		dialect, err := sqldoc.DialectFor(cfg.Storage.Driver)
		if err != nil {
			return nil, err
		}
		db, err := sqldoc.Open(ctx, dialect, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sqldoc.Migrate(ctx, db, dialect, "up", logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		logger.Info("using SQL document storage", "driver", cfg.Storage.Driver)
		return sqldoc.New(db, dialect, seeds, logger), nil

	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ms, err := mongostore.Connect(connectCtx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, seeds, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		logger.Info("using MongoDB storage", "database", cfg.Storage.MongoDatabase)
		return ms, nil

	case config.DriverMemory:
		logger.Warn("using in-memory storage; records are lost on shutdown")
		return store.NewMemoryAdapter(seeds), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func seedsFor(registry *domain.Registry) map[string][]domain.Record {
	seeds := make(map[string][]domain.Record)
	for _, kind := range registry.All() {
		if len(kind.Seed) > 0 {
			seeds[kind.Name] = kind.Seed
		}
	}
	return seeds
}

// Run serves HTTP until ctx is cancelled or a shutdown signal arrives.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.limiter != nil {
		app.limiter.Stop()
	}
	if app.adapter != nil {
		if err := app.adapter.Close(); err != nil {
			app.logger.Error("error closing storage", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
