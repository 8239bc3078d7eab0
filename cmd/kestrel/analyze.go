package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NewAnalyzeCommand runs a single analysis and prints the verdict.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <type> <value>",
		Short: "Analyze one value and print the verdict as JSON",
		Example: `  kestrel analyze phone "+1-900-555-0199"
  kestrel analyze url http://192.168.1.1/login --mode heuristic
  kestrel analyze sms "You won a prize, claim now"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, os.Stderr)
			if err != nil {
				return err
			}

			kind := domain.InputKind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("unsupported type %q (want phone, url, sms or file)", args[0])
			}

			ctx := context.Background()
			s, err := openStack(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.analyzer.Analyze(ctx, kind, args[1], cfg.Mode)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return cmd
}
