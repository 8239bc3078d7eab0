// Package analyzer turns a raw phone number, URL, SMS or file reference into
// a labeled scam verdict.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fusion"
	"github.com/opensource-finance/kestrel/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnsupportedKind is returned for input kinds with no detector.
var ErrUnsupportedKind = errors.New("unsupported input type")

var tracer = otel.Tracer("kestrel-analyzer")

// BlacklistLookup finds known-bad values. A nil entry with a nil error means
// the value is not listed.
type BlacklistLookup interface {
	Lookup(ctx context.Context, kind domain.InputKind, value string) (*domain.BlacklistEntry, error)
}

// RuleEvaluator applies operator-defined rules on top of the built-in heuristics.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, kind domain.InputKind, value string, attrs map[string]any, score float64) []domain.RuleHit
}

// Analyzer runs extraction, scoring, fusion and labeling for every input kind.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	detectors map[domain.InputKind]Detector
	blacklist BlacklistLookup
	scorer    *model.Scorer
	rules     RuleEvaluator
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBlacklist sets the blacklist collaborator.
func WithBlacklist(l BlacklistLookup) Option {
	return func(a *Analyzer) { a.blacklist = l }
}

// WithModel sets the statistical scorer.
func WithModel(s *model.Scorer) Option {
	return func(a *Analyzer) { a.scorer = s }
}

// WithRules sets the custom rule evaluator.
func WithRules(r RuleEvaluator) Option {
	return func(a *Analyzer) { a.rules = r }
}

// WithDetector replaces the detector registered for d.Kind().
func WithDetector(d Detector) Option {
	return func(a *Analyzer) { a.detectors[d.Kind()] = d }
}

// New creates an analyzer with the built-in detectors.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		detectors: make(map[domain.InputKind]Detector),
	}
	for _, d := range Detectors() {
		a.detectors[d.Kind()] = d
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ModelLoaded reports whether a classifier is available.
func (a *Analyzer) ModelLoaded() bool {
	return a.scorer.Loaded()
}

// Inspect extracts the attribute bundle for value without scoring it.
func (a *Analyzer) Inspect(ctx context.Context, kind domain.InputKind, value string) (Bundle, error) {
	d, err := a.detector(kind)
	if err != nil {
		return nil, err
	}
	return d.Extract(value, a.lookup(ctx, d, value)), nil
}

// Analyze labels value. Only an unsupported kind is an error; lookup and
// classifier failures degrade to "not listed" and a neutral score.
func (a *Analyzer) Analyze(ctx context.Context, kind domain.InputKind, value string, mode domain.FusionMode) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analyze",
		trace.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("mode", string(mode)),
		),
	)
	defer span.End()

	d, err := a.detector(kind)
	if err != nil {
		return nil, err
	}

	bundle := d.Extract(value, a.lookup(ctx, d, value))
	heuristic := a.heuristic(ctx, d, bundle)

	usedMethods := []string{domain.MethodHeuristic}
	explain := heuristic.Explain

	statistical := fusion.Neutral
	if d.UsesModel() && fusion.UsesModel(mode) && a.scorer.Loaded() {
		p := a.scorer.Predict(model.VectorFrom(bundle.Attributes()))
		statistical = p.Or(fusion.Neutral)
		explain = append(explain, fmt.Sprintf("ML model prediction: %.2f", statistical))
		usedMethods = append(usedMethods, domain.MethodML)
	}

	listed, trust := bundle.Blacklisted()
	if listed {
		usedMethods = append(usedMethods, domain.MethodLookup)
	}

	decision := fusion.Decide(fusion.Input{
		Heuristic:   heuristic.Score,
		Statistical: statistical,
		Mode:        mode,
		Listed:      listed,
		Trust:       trust,
	})

	span.SetAttributes(
		attribute.String("label", string(decision.Label)),
		attribute.Float64("confidence", decision.Confidence),
	)

	return &domain.AnalysisResult{
		Label:       decision.Label,
		Confidence:  decision.Confidence,
		Explain:     explain,
		UsedMethods: usedMethods,
	}, nil
}

func (a *Analyzer) detector(kind domain.InputKind) (Detector, error) {
	d, ok := a.detectors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return d, nil
}

// lookup consults the blacklist for kinds that use it. Failures are logged
// and treated as "not listed".
func (a *Analyzer) lookup(ctx context.Context, d Detector, value string) Hit {
	if a.blacklist == nil || !d.UsesBlacklist() {
		return Hit{}
	}

	entry, err := a.blacklist.Lookup(ctx, d.Kind(), value)
	if err != nil {
		slog.Warn("blacklist lookup failed, treating as not listed",
			"kind", d.Kind(),
			"error", err,
		)
		return Hit{}
	}
	if entry == nil {
		return Hit{}
	}
	return Hit{Listed: true, Trust: entry.Trust}
}

// heuristic runs the built-in rules, then any custom rules, then finishes
// the tally.
func (a *Analyzer) heuristic(ctx context.Context, d Detector, b Bundle) ScoreResult {
	tally := d.Score(b)
	if a.rules != nil {
		for _, hit := range a.rules.Evaluate(ctx, d.Kind(), b.Raw(), b.Attributes(), tally.Score) {
			tally.Add(hit.Increment, hit.Reason)
		}
	}
	return tally.Finish(d.Benign())
}
