// Package worker processes user reports asynchronously from the EventBus.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/blacklist"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// CounterNamespace scopes report counters in the cache.
const CounterNamespace = "reports"

// Worker stores reports, turns them into training examples and promotes
// repeatedly reported values onto the blacklist.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	blacklist *blacklist.Service
	analyzer  *analyzer.Analyzer
	metrics   *metrics.Metrics
	cfg       domain.ReportsConfig

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	promoted  atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a report worker. m may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, bl *blacklist.Service, an *analyzer.Analyzer, cfg domain.ReportsConfig, m *metrics.Metrics) *Worker {
	if cfg.PromoteThreshold < 1 {
		cfg.PromoteThreshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     cache,
		blacklist: bl,
		analyzer:  an,
		metrics:   m,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to submitted reports.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicReportSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to reports: %w", err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("report worker started",
		"topic", domain.TopicReportSubmitted,
		"promote_threshold", w.cfg.PromoteThreshold,
		"window", w.cfg.Window.String(),
	)
	return nil
}

// Publish puts a report on the bus for the worker to pick up. ID and
// CreatedAt are filled in when missing.
func Publish(ctx context.Context, bus domain.EventBus, r *domain.Report) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return bus.Publish(ctx, domain.TopicReportSubmitted, payload)
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var r domain.Report
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("failed to parse report message %s: %w", msg.ID, err)
	}

	if err := w.Process(ctx, &r); err != nil {
		w.failed.Add(1)
		return err
	}
	return nil
}

// Process handles one report. Only storing the report itself is fatal;
// the follow-up steps log and continue.
func (w *Worker) Process(ctx context.Context, r *domain.Report) error {
	start := time.Now()

	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unsupported type %q", repository.ErrInvalidInput, r.Kind)
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Label == "" {
		r.Label = domain.LabelScam
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	if err := w.repo.SaveReport(ctx, r); err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	w.processed.Add(1)
	w.metrics.Report(string(r.Kind))

	w.recordExample(ctx, r)

	promoted := false
	if w.cache != nil {
		var err error
		promoted, err = w.countAndPromote(ctx, r)
		if err != nil {
			slog.Error("report promotion failed",
				"report_id", r.ID,
				"kind", r.Kind,
				"error", err,
			)
		}
	}

	slog.Info("report processed",
		"report_id", r.ID,
		"kind", r.Kind,
		"label", r.Label,
		"promoted", promoted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// recordExample stores the report as a labeled training example.
func (w *Worker) recordExample(ctx context.Context, r *domain.Report) {
	if w.analyzer == nil {
		return
	}

	bundle, err := w.analyzer.Inspect(ctx, r.Kind, r.Value)
	if err != nil {
		slog.Warn("failed to extract report features", "report_id", r.ID, "error", err)
		return
	}

	ex := &domain.TrainingExample{
		ID:        uuid.New().String(),
		Kind:      r.Kind,
		Raw:       r.Value,
		Label:     r.Label,
		Features:  bundle.Attributes(),
		CreatedAt: r.CreatedAt,
	}
	if err := w.repo.SaveTrainingExample(ctx, ex); err != nil {
		slog.Warn("failed to save training example", "report_id", r.ID, "error", err)
	}
}

// countAndPromote bumps the report counter for the value and blacklists it
// once the threshold is reached.
func (w *Worker) countAndPromote(ctx context.Context, r *domain.Report) (bool, error) {
	if !r.Label.IsScam() {
		return false, nil
	}

	count, err := w.cache.IncrementCounter(ctx, CounterNamespace, counterKey(r.Kind, r.Value), w.cfg.Window)
	if err != nil {
		return false, fmt.Errorf("failed to count report: %w", err)
	}
	if count < w.cfg.PromoteThreshold || w.blacklist == nil {
		return false, nil
	}

	existing, err := w.repo.LookupBlacklist(ctx, r.Kind, r.Value)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	trust := w.cfg.PromoteTrust
	entry, err := w.blacklist.Add(ctx, r.Kind, r.Value, &trust, domain.SourceReports)
	if err != nil {
		return false, err
	}
	w.promoted.Add(1)
	w.metrics.Promotion()

	event := domain.PromotionEvent{
		Kind:    entry.Kind,
		Value:   entry.Value,
		Trust:   entry.Trust,
		Reports: count,
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = w.bus.Publish(ctx, domain.TopicBlacklistPromoted, payload)
	}
	if err != nil {
		slog.Error("failed to publish promotion",
			"kind", entry.Kind,
			"error", err,
		)
	}

	slog.Info("value promoted to blacklist",
		"kind", entry.Kind,
		"trust_score", entry.Trust,
		"reports", count,
	)
	return true, nil
}

func counterKey(kind domain.InputKind, value string) string {
	return "report:" + string(kind) + ":" + value
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("report worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Promoted          int64    `json:"promoted"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Promoted:          w.promoted.Load(),
		Failed:            w.failed.Load(),
	}
}
