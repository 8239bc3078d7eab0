package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/blacklist"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/training"
)

// stack holds the components shared by the commands.
type stack struct {
	cfg       *domain.Config
	repo      domain.Repository
	cache     domain.Cache
	metrics   *metrics.Metrics
	blacklist *blacklist.Service
	engine    *rules.Engine
	analyzer  *analyzer.Analyzer
}

// openStack initializes storage, cache, blacklist, rules and the analyzer.
// The model is loaded when present and trained first when allowed.
func openStack(ctx context.Context, cfg *domain.Config, autoTrain bool) (*stack, error) {
	s := &stack{cfg: cfg, metrics: metrics.New()}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	s.repo = repo
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	c, err := cache.New(cfg.Cache)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	s.cache = c
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	s.blacklist = blacklist.NewService(repo, c, cfg.Blacklist.CacheTTL, s.metrics)
	if cfg.Blacklist.Seed {
		n, err := s.blacklist.Seed(ctx)
		if err != nil {
			slog.Warn("failed to seed blacklist", "error", err)
		} else {
			slog.Debug("blacklist seeded", "entries", n)
		}
	}

	engine, err := rules.NewEngine(0)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	s.engine = engine
	loadRulesFromDatabase(ctx, repo, engine)

	clf := loadModel(ctx, repo, cfg.Model, autoTrain)
	s.analyzer = analyzer.New(
		analyzer.WithBlacklist(s.blacklist),
		analyzer.WithRules(engine),
		analyzer.WithModel(model.NewScorer(clf)),
	)

	return s, nil
}

// Close releases storage and cache connections.
func (s *stack) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.repo != nil {
		s.repo.Close()
	}
}

// loadRulesFromDatabase loads the stored custom rules into the engine.
// Rules are managed through the API; an empty table is normal.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return
	}
	if err := engine.LoadRules(dbRules); err != nil {
		slog.Warn("failed to load rules", "error", err)
		return
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())
}

// loadModel returns the classifier at cfg.Path, training one first when the
// file is missing and training is allowed. It returns nil when no model is
// available; the analyzer then runs without one.
func loadModel(ctx context.Context, store training.Store, cfg domain.ModelConfig, autoTrain bool) model.Classifier {
	if cfg.Path == "" {
		return nil
	}

	m, err := model.Load(cfg.Path)
	if err == nil {
		slog.Info("model loaded", "path", cfg.Path, "samples", m.Samples)
		return m
	}
	if !errors.Is(err, model.ErrNoModel) {
		slog.Warn("failed to load model, continuing without one", "path", cfg.Path, "error", err)
		return nil
	}
	if !autoTrain || !cfg.AutoTrain {
		slog.Info("no model file, continuing without one", "path", cfg.Path)
		return nil
	}

	res, err := training.Run(ctx, store, training.Options{
		ModelPath: cfg.Path,
		Fit:       model.DefaultTrainOptions(),
	})
	if err != nil {
		slog.Warn("automatic training failed, continuing without a model", "error", err)
		return nil
	}
	return res.Model
}
