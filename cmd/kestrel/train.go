package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/training"
)

// NewTrainCommand fits the classifier from stored training examples.
func NewTrainCommand() *cobra.Command {
	var c float64

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier and write the model file",
		Long: `Train the classifier and write the model file

Fits a logistic regression on every stored training example. When fewer
than 10 examples exist, built-in synthetic examples are added first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, os.Stderr)
			if err != nil {
				return err
			}

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			opts := model.DefaultTrainOptions()
			opts.C = c

			res, err := training.Run(context.Background(), repo, training.Options{
				ModelPath: cfg.Model.Path,
				Fit:       opts,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model written to %s\n", res.Path)
			fmt.Fprintf(out, "  Examples:     %d (%d synthesized)\n", res.Examples, res.Synthesized)
			if res.Accuracy != nil {
				fmt.Fprintf(out, "  Accuracy:     %.2f\n", *res.Accuracy)
			} else {
				fmt.Fprintf(out, "  Accuracy:     n/a (no holdout)\n")
			}
			fmt.Fprintf(out, "  Duration:     %s\n", res.Duration)
			return nil
		},
	}

	cmd.Flags().Float64Var(&c, "regularization", 1.0, "inverse L2 regularization strength (C)")

	return cmd
}
