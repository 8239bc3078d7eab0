package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/blacklist"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// withBlacklist opens the repository and hands a cache-less blacklist
// service to fn.
func withBlacklist(cmd *cobra.Command, fn func(ctx context.Context, svc *blacklist.Service) error) error {
	cfg, err := loadConfig(cmd, os.Stderr)
	if err != nil {
		return err
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	return fn(context.Background(), blacklist.NewService(repo, nil, 0, nil))
}

// NewSeedCommand inserts the built-in blacklist entries.
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the built-in blacklist entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlacklist(cmd, func(ctx context.Context, svc *blacklist.Service) error {
				n, err := svc.Seed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d blacklist entries\n", n)
				return nil
			})
		},
	}
}

// NewBlacklistCommand manages blacklist entries.
func NewBlacklistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blacklist entries",
	}

	cmd.AddCommand(newBlacklistAddCommand())
	cmd.AddCommand(newBlacklistListCommand())
	cmd.AddCommand(newBlacklistRemoveCommand())

	return cmd
}

func newBlacklistAddCommand() *cobra.Command {
	var trust float64

	cmd := &cobra.Command{
		Use:     "add <type> <value>",
		Short:   "Add or update an entry",
		Example: `  kestrel blacklist add url http://phishing-site.com --trust 0.95`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t *float64
			if cmd.Flags().Changed("trust") {
				t = &trust
			}
			return withBlacklist(cmd, func(ctx context.Context, svc *blacklist.Service) error {
				entry, err := svc.Add(ctx, domain.InputKind(args[0]), args[1], t, domain.SourceOperator)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Listed %s %s (trust %.2f)\n", entry.Kind, entry.Value, entry.Trust)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&trust, "trust", domain.DefaultTrust, "trust score in [0, 1]")

	return cmd
}

func newBlacklistListCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlacklist(cmd, func(ctx context.Context, svc *blacklist.Service) error {
				entries, err := svc.List(ctx, domain.InputKind(kind))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TYPE\tVALUE\tTRUST\tSOURCE\tADDED")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", e.Kind, e.Value, e.Trust, e.Source, e.AddedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "", "only list entries of this type")

	return cmd
}

func newBlacklistRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <type> <value>",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlacklist(cmd, func(ctx context.Context, svc *blacklist.Service) error {
				if err := svc.Remove(ctx, domain.InputKind(args[0]), args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
}
