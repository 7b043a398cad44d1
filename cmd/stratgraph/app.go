package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/algomatic/stratgraph/internal/config"
	"github.com/algomatic/stratgraph/internal/db"
	"github.com/algomatic/stratgraph/pkg/backtest"
	"github.com/algomatic/stratgraph/pkg/catalog"
	"github.com/algomatic/stratgraph/pkg/events"
	"github.com/algomatic/stratgraph/pkg/interpret"
	"github.com/algomatic/stratgraph/pkg/llm"
	"github.com/algomatic/stratgraph/pkg/metrics"
	"github.com/algomatic/stratgraph/pkg/persistence"
	"github.com/algomatic/stratgraph/pkg/runtracker"
)

// app is the wired service graph shared by interpret, backtest and serve.
type app struct {
	cfg     *config.Config
	cat     *catalog.Catalog
	store   persistence.Store
	bus     *events.Bus
	metrics *metrics.Registry
	service *interpret.Service
	runner  *backtest.Runner
	logger  *slog.Logger
}

// newApp connects the backends cfg selects.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	path := catalogPath
	if path == "" {
		path = cfg.Catalog.Path
	}
	cat, err := loadCatalog(path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cat: cat, metrics: metrics.NewRegistry(), logger: logger}

	if a.store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		a.bus = newBus(cfg, logger)
		if err := a.bus.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, events may be lost", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	deps := interpret.Deps{
		Catalog: cat,
		Store:   a.store,
		Metrics: a.metrics,
		Logger:  logger,
	}
	if a.bus != nil {
		deps.Publisher = a.bus
	}
	if cfg.LLM.APIKey != "" {
		deps.Oracle = llm.NewClient(llm.Config{
			Provider:          cfg.LLM.Provider,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			BaseURL:           cfg.LLM.BaseURL,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Logger:            logger,
		})
	} else {
		logger.Warn("SG_LLM_API_KEY not set, interpretation disabled")
	}
	a.service = interpret.NewService(deps)

	a.runner = backtest.NewRunner(backtest.Config{
		WorkDir:      cfg.Backtest.WorkDir,
		CodegenPath:  cfg.Backtest.CodegenPath,
		BacktestPath: cfg.Backtest.BacktestPath,
		Timeout:      cfg.Backtest.Timeout,
	}, runtracker.NewTracker(logger, version), a.metrics, logger)

	return a, nil
}

func newBus(cfg *config.Config, logger *slog.Logger) *events.Bus {
	return events.NewBus(events.BusOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.ChannelPrefix,
	}, logger)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store := persistence.NewPostgresStore(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "memory":
		logger.Info("Using in-memory strategy store")
		return persistence.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (a *app) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("Closing event bus", "error", err)
		}
	}
	a.store.Close()
}

// publisher returns the bus as an interpret.Publisher, or nil.
func (a *app) publisher() interpret.Publisher {
	if a.bus == nil {
		return nil
	}
	return a.bus
}
