package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// NewServeCommand runs the HTTP API with the report worker.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server

Initializes storage, cache, event bus, rules and the classifier, starts the
report worker and serves the API until SIGINT or SIGTERM.`,
		Example: `  # Community tier on the default port
  kestrel serve

  # Pro tier (PostgreSQL, Redis, NATS)
  KESTREL_TIER=pro kestrel serve --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, os.Stdout)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().String("host", "", "listen address")
	cmd.Flags().Int("port", 0, "listen port")

	return cmd
}

func serve(cfg *domain.Config) error {
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"mode", cfg.Mode,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStack(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var reportWorker *worker.Worker
	if cfg.Reports.Enabled {
		reportWorker = worker.NewWorker(busImpl, s.repo, s.cache, s.blacklist, s.analyzer, cfg.Reports, s.metrics)
		if err := reportWorker.Start(); err != nil {
			return err
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Analyzer:  s.analyzer,
		Repo:      s.repo,
		Bus:       busImpl,
		Blacklist: s.blacklist,
		Engine:    s.engine,
		Metrics:   s.metrics,
		Version:   Version,
		Mode:      cfg.Mode,
		History:   cfg.Server.History,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", s.analyzer.ModelLoaded(),
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		slog.Error("server failed", "error", err)
		if reportWorker != nil {
			reportWorker.Stop()
		}
		return err
	}

	// Stop the worker first so no report is half processed
	if reportWorker != nil {
		if err := reportWorker.Stop(); err != nil {
			slog.Error("failed to stop report worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                 KESTREL                   ║")
	fmt.Println("  ║          Scam Signal Analysis             ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Mode:     %s\n", cfg.Mode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /analyze/{type}     - Analyze a phone, url, sms or file")
	fmt.Println("    POST   /analyze            - Analyze {type, value}")
	fmt.Println("    GET    /analyses/{id}      - Get a stored analysis")
	fmt.Println("    GET    /blacklist          - List blacklist entries")
	fmt.Println("    POST   /blacklist          - Add a blacklist entry")
	fmt.Println("    DELETE /blacklist/{type}   - Remove a blacklist entry")
	fmt.Println("    POST   /reports            - Report a scam")
	fmt.Println("    GET    /rules              - List loaded rules")
	fmt.Println("    POST   /rules              - Create a rule")
	fmt.Println("    POST   /rules/reload       - Hot-reload rules from database")
	fmt.Println("    GET    /health             - Health check")
	fmt.Println("    GET    /metrics            - Prometheus metrics")
	fmt.Println()
}
