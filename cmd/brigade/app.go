package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinzhu/gorm"

	"brigade/internal/agents"
	"brigade/internal/analytics"
	"brigade/internal/capability"
	"brigade/internal/config"
	"brigade/internal/database"
	"brigade/internal/evaluation"
	"brigade/internal/monitoring"
	"brigade/internal/quality"
	"brigade/internal/store"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	store  *store.Store

	metrics      *evaluation.MetricsCollector
	monitor      *monitoring.Monitor
	coordinator  *agents.Coordinator
	orchestrator *agents.Orchestrator
	analytics    *analytics.Engine
}

// openStore connects, migrates and wraps the database.
func openStore(cfg *config.Config, logger *slog.Logger) (*gorm.DB, *store.Store, error) {
	db, err := database.Open(database.Options{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN,
		LogMode: cfg.Database.LogMode,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, store.New(db), nil
}

// seedRoster loads the configured roster, or the built-in one into an empty
// database.
func seedRoster(ctx context.Context, cfg *config.Config, s *store.Store, logger *slog.Logger) error {
	if cfg.RosterFile == "" {
		seeded, err := database.SeedDefaults(ctx, s)
		if err != nil {
			return err
		}
		if seeded {
			logger.Info("seeded default roster")
		}
		return nil
	}
	r, err := database.LoadRoster(cfg.RosterFile)
	if err != nil {
		return err
	}
	if err := database.Seed(ctx, s, r); err != nil {
		return err
	}
	logger.Info("seeded roster", "path", cfg.RosterFile, "departments", len(r.Departments), "agents", len(r.Agents))
	return nil
}

// newApp wires storage, the model provider and the agent hierarchy. The
// returned app owns the database handle; call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, s, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db, store: s}
	if err := a.wire(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if err := seedRoster(ctx, cfg, a.store, a.logger); err != nil {
		return fmt.Errorf("seeding roster: %w", err)
	}

	registry := capability.DefaultRegistry()
	roster, err := a.store.Agents.List(ctx)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	if err := registry.Validate(roster); err != nil {
		return err
	}

	provider, err := capability.NewProvider(ctx, capability.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Region:   cfg.LLM.Region,
	})
	if err != nil {
		return fmt.Errorf("creating %s provider: %w", cfg.LLM.Provider, err)
	}

	scorer := quality.NewScorer(a.logger)
	if path := cfg.Quality.ProfilesFile; path != "" {
		if err := scorer.LoadFile(path); err != nil {
			return err
		}
		if cfg.Quality.Watch {
			if err := scorer.Watch(ctx, path); err != nil {
				return err
			}
		}
	}

	a.metrics = evaluation.NewMetricsCollector()
	a.monitor = monitoring.NewMonitor()

	svc := agents.Services{
		Agents:      a.store.Agents,
		Departments: a.store.Departments,
		Executions:  a.store.Executions,
		Invoker:     capability.NewInvoker(a.store.Agents, registry, provider, a.logger),
		Scorer:      scorer,
		Recorder:    a.metrics,
		Logger:      a.logger,
	}

	loop := agents.NewSpecialistLoop(svc, agents.WithAttemptTimeout(cfg.Orchestration.AttemptTimeout))
	a.coordinator = agents.NewCoordinator(svc, loop,
		agents.WithDefaults(cfg.Orchestration.DefaultThreshold, cfg.Orchestration.DefaultMaxRetries))

	var router agents.Router = agents.NewKeywordRouter(a.store.Departments)
	if cfg.Orchestration.Router == config.RouterModel {
		router = agents.NewModelRouter(svc, cfg.Orchestration.MasterAgentID, a.store.Departments, router)
	}
	a.orchestrator = agents.NewOrchestrator(svc, router, a.coordinator, a.store.Runs,
		agents.WithObserver(a.monitor))

	a.analytics = newAnalytics(cfg, a.store, a.logger)
	return nil
}

func newAnalytics(cfg *config.Config, s *store.Store, logger *slog.Logger) *analytics.Engine {
	return analytics.NewEngine(s.Executions,
		analytics.WithMaxRecords(cfg.Analytics.MaxRecords),
		analytics.WithLogger(logger))
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
