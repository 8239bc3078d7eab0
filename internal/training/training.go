// Package training builds the statistical model from stored examples.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/model"
)

const (
	// MinExamples is the row count below which synthetic examples are added.
	MinExamples = 10

	// minFitSamples is the smallest set worth fitting.
	minFitSamples = 4

	holdoutFraction = 0.2
	splitSeed       = 42
)

// ErrInsufficientData is returned when too few examples exist even after
// synthesis.
var ErrInsufficientData = errors.New("insufficient training data")

// Store is the slice of the repository training needs.
type Store interface {
	SaveTrainingExample(ctx context.Context, ex *domain.TrainingExample) error
	ListTrainingExamples(ctx context.Context, kind domain.InputKind, limit int) ([]*domain.TrainingExample, error)
	CountTrainingExamples(ctx context.Context) (int, error)
}

// Options controls a training run.
type Options struct {
	// ModelPath is where the fitted model is written. Empty skips saving.
	ModelPath string

	Fit model.TrainOptions
}

// Result describes a finished run.
type Result struct {
	Model       *model.Logistic
	Examples    int
	Synthesized int
	Accuracy    *float64
	Path        string
	Duration    time.Duration
}

// Run loads every stored example, tops the store up with synthetic examples
// when it holds fewer than MinExamples, fits the classifier and writes it.
// With MinExamples or more rows a seeded 20% holdout measures accuracy.
func Run(ctx context.Context, store Store, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{Path: opts.ModelPath}

	count, err := store.CountTrainingExamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("count training examples: %w", err)
	}

	if count < MinExamples {
		slog.Info("synthesizing training data", "existing", count)
		res.Synthesized = synthesize(ctx, store)
	}

	examples, err := store.ListTrainingExamples(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("list training examples: %w", err)
	}
	res.Examples = len(examples)

	samples := Samples(examples)
	if len(samples) < minFitSamples {
		return nil, fmt.Errorf("%w: %d examples", ErrInsufficientData, len(samples))
	}

	fitOpts := opts.Fit
	if fitOpts == (model.TrainOptions{}) {
		fitOpts = model.DefaultTrainOptions()
	}

	var clf *model.Logistic
	if len(samples) >= MinExamples {
		train, test := model.Split(samples, holdoutFraction, splitSeed)
		clf, err = model.Fit(train, fitOpts)
		if err != nil {
			return nil, fmt.Errorf("fit model: %w", err)
		}
		acc := model.Accuracy(clf, test)
		clf.Accuracy = &acc
		res.Accuracy = &acc
	} else {
		clf, err = model.Fit(samples, fitOpts)
		if err != nil {
			return nil, fmt.Errorf("fit model: %w", err)
		}
	}
	res.Model = clf

	if opts.ModelPath != "" {
		if err := clf.Save(opts.ModelPath); err != nil {
			return nil, err
		}
	}

	res.Duration = time.Since(start)
	slog.Info("model trained",
		"examples", res.Examples,
		"synthesized", res.Synthesized,
		"path", opts.ModelPath,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Samples converts stored examples to labeled vectors. scam and likely_scam
// are the positive class.
func Samples(examples []*domain.TrainingExample) []model.Sample {
	samples := make([]model.Sample, 0, len(examples))
	for _, ex := range examples {
		y := 0.0
		if ex.Label.IsScam() {
			y = 1
		}
		samples = append(samples, model.Sample{X: model.VectorFrom(ex.Features), Y: y})
	}
	return samples
}

// synthesize stores the reference examples, skipping any that already exist.
func synthesize(ctx context.Context, store Store) int {
	added := 0
	for _, ex := range SyntheticExamples() {
		if err := store.SaveTrainingExample(ctx, ex); err != nil {
			slog.Debug("skipping synthetic example", "input", ex.Raw, "error", err)
			continue
		}
		added++
	}
	return added
}

// SyntheticExamples is the reference phone training set.
func SyntheticExamples() []*domain.TrainingExample {
	type row struct {
		raw      string
		label    domain.Label
		features map[string]any
	}
	rows := []row{
		{"+1-900-555-0199", domain.LabelScam, map[string]any{"length": 15, "is_premium": true, "in_blacklist": true}},
		{"+91-9000000000", domain.LabelScam, map[string]any{"length": 13, "has_suspicious_pattern": true, "repeated_digits": 10}},
		{"1900555", domain.LabelScam, map[string]any{"length": 7, "is_premium": true, "is_shortcode": false}},
		{"+1-888-SCAM-NOW", domain.LabelLikelyScam, map[string]any{"length": 14, "in_blacklist": true}},
		{"9999999999", domain.LabelScam, map[string]any{"length": 10, "has_suspicious_pattern": true, "repeated_digits": 10}},
		{"+1-900-123-4567", domain.LabelLikelyScam, map[string]any{"length": 15, "is_premium": true}},
		{"+1-415-555-1234", domain.LabelBenign, map[string]any{"length": 15, "is_valid": true, "is_premium": false}},
		{"+91-9876543210", domain.LabelBenign, map[string]any{"length": 13, "is_valid": true, "is_premium": false}},
		{"+44-20-7946-0958", domain.LabelBenign, map[string]any{"length": 16, "is_valid": true, "is_premium": false}},
		{"555-1234", domain.LabelBenign, map[string]any{"length": 8, "is_shortcode": true}},
	}

	now := time.Now().UTC()
	out := make([]*domain.TrainingExample, len(rows))
	for i, r := range rows {
		out[i] = &domain.TrainingExample{
			ID:          "synthetic:phone:" + r.raw,
			Kind:        domain.KindPhone,
			Raw:         r.raw,
			Label:       r.label,
			Features:    r.features,
			IsSynthetic: true,
			CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
		}
	}
	return out
}
