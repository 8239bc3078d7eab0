// Kestrel - Scam signal analysis for phones, links, messages and files.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the kestrel command tree.
func NewRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "kestrel",
		Short: "Scam signal analysis for phones, links, messages and files",
		Long: `Kestrel labels phone numbers, URLs, SMS texts and file names as
benign, suspicious, likely_scam or scam, and explains why.

Configuration is read from kestrel.yaml, KESTREL_* environment variables
and the flags below, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default ./kestrel.yaml)")
	flags.String("tier", "", "infrastructure profile: community or pro")
	flags.String("mode", "", "default fusion mode: heuristic, ml, balanced or hybrid")
	flags.String("db", "", "SQLite database path")
	flags.String("model", "", "model file path")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: json or text")

	cmd.AddCommand(
		NewServeCommand(),
		NewAnalyzeCommand(),
		NewTrainCommand(),
		NewSeedCommand(),
		NewBlacklistCommand(),
		NewBenchmarkCommand(),
		NewVersionCommand(),
	)

	return cmd
}

// loadConfig reads the configuration for cmd and installs the default
// logger. Logs go to w so that commands printing results keep stdout clean.
func loadConfig(cmd *cobra.Command, w io.Writer) (*domain.Config, error) {
	file, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(config.Options{
		File:  file,
		Flags: cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(w, cfg.Logging))
	return cfg, nil
}

func newLogger(w io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("KESTREL_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewVersionCommand prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kestrel %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
