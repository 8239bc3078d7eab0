// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != ":memory:" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// LookupBlacklist returns the entry for (kind, value) or ErrNotFound.
func (r *SQLRepository) LookupBlacklist(ctx context.Context, kind domain.InputKind, value string) (*domain.BlacklistEntry, error) {
	query := `
		SELECT type, value, trust_score, source, added_at
		FROM blacklist
		WHERE type = ? AND value = ?
	`

	entry, err := scanBlacklist(r.db.QueryRowContext(ctx, r.rebind(query), string(kind), value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveBlacklistEntry inserts an entry or replaces the trust and source of
// an existing one.
func (r *SQLRepository) SaveBlacklistEntry(ctx context.Context, entry *domain.BlacklistEntry) error {
	if entry == nil || entry.Value == "" {
		return fmt.Errorf("%w: blacklist value is required", ErrInvalidInput)
	}
	if !entry.Kind.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidInput, entry.Kind)
	}
	if entry.Trust < 0 || entry.Trust > 1 {
		return fmt.Errorf("%w: trust_score must be within [0, 1]", ErrInvalidInput)
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO blacklist (type, value, trust_score, source, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (type, value) DO UPDATE SET
			trust_score = excluded.trust_score,
			source = excluded.source
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		string(entry.Kind), entry.Value, entry.Trust, entry.Source, entry.AddedAt,
	)
	return err
}

// ListBlacklist lists entries, optionally restricted to one kind.
func (r *SQLRepository) ListBlacklist(ctx context.Context, kind domain.InputKind) ([]*domain.BlacklistEntry, error) {
	query := `SELECT type, value, trust_score, source, added_at FROM blacklist`
	var args []any
	if kind != "" {
		query += ` WHERE type = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY type, value`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.BlacklistEntry
	for rows.Next() {
		entry, err := scanBlacklist(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteBlacklistEntry removes an entry.
func (r *SQLRepository) DeleteBlacklistEntry(ctx context.Context, kind domain.InputKind, value string) error {
	query := `DELETE FROM blacklist WHERE type = ? AND value = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(kind), value)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlacklist(row rowScanner) (*domain.BlacklistEntry, error) {
	var entry domain.BlacklistEntry
	var kind string
	var trust sql.NullFloat64
	var source sql.NullString

	if err := row.Scan(&kind, &entry.Value, &trust, &source, &entry.AddedAt); err != nil {
		return nil, err
	}

	entry.Kind = domain.InputKind(kind)
	entry.Trust = domain.DefaultTrust
	if trust.Valid {
		entry.Trust = trust.Float64
	}
	entry.Source = source.String
	return &entry, nil
}

// SaveTrainingExample stores a labeled example.
func (r *SQLRepository) SaveTrainingExample(ctx context.Context, ex *domain.TrainingExample) error {
	if ex == nil || ex.ID == "" {
		return fmt.Errorf("%w: training example id is required", ErrInvalidInput)
	}
	if !ex.Kind.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidInput, ex.Kind)
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	features, err := json.Marshal(ex.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	query := `
		INSERT INTO training_data (id, type, input_raw, label, features, is_synthetic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		ex.ID, string(ex.Kind), ex.Raw, string(ex.Label),
		string(features), boolToInt(ex.IsSynthetic), ex.CreatedAt,
	)
	return err
}

// ListTrainingExamples lists examples oldest first, optionally for one
// kind. A non-positive limit returns every row.
func (r *SQLRepository) ListTrainingExamples(ctx context.Context, kind domain.InputKind, limit int) ([]*domain.TrainingExample, error) {
	query := `SELECT id, type, input_raw, label, features, is_synthetic, created_at FROM training_data`
	var args []any
	if kind != "" {
		query += ` WHERE type = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []*domain.TrainingExample
	for rows.Next() {
		var ex domain.TrainingExample
		var kind, label string
		var features sql.NullString
		var synthetic int

		if err := rows.Scan(&ex.ID, &kind, &ex.Raw, &label, &features, &synthetic, &ex.CreatedAt); err != nil {
			return nil, err
		}

		ex.Kind = domain.InputKind(kind)
		ex.Label = domain.Label(label)
		ex.IsSynthetic = synthetic != 0
		if features.String != "" {
			if err := json.Unmarshal([]byte(features.String), &ex.Features); err != nil {
				return nil, fmt.Errorf("training example %s: failed to decode features: %w", ex.ID, err)
			}
		}
		examples = append(examples, &ex)
	}
	return examples, rows.Err()
}

// CountTrainingExamples counts rows across all kinds.
func (r *SQLRepository) CountTrainingExamples(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_data`).Scan(&n)
	return n, err
}

// SaveAnalysis stores a completed analysis.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	explain, err := json.Marshal(nonNil(a.Explain))
	if err != nil {
		return err
	}
	methods, err := json.Marshal(nonNil(a.UsedMethods))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analyses (id, type, input_raw, mode, label, confidence, explain, used_methods, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, string(a.Kind), a.Value, string(a.Mode), string(a.Label), a.Confidence,
		string(explain), string(methods), a.CreatedAt,
	)
	return err
}

// GetAnalysis retrieves an analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	query := `
		SELECT id, type, input_raw, mode, label, confidence, explain, used_methods, created_at
		FROM analyses
		WHERE id = ?
	`

	var a domain.Analysis
	var kind, mode, label, explain, methods string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&a.ID, &kind, &a.Value, &mode, &label, &a.Confidence,
		&explain, &methods, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Kind = domain.InputKind(kind)
	a.Mode = domain.FusionMode(mode)
	a.Label = domain.Label(label)
	if err := json.Unmarshal([]byte(explain), &a.Explain); err != nil {
		return nil, fmt.Errorf("analysis %s: failed to decode explain: %w", id, err)
	}
	if err := json.Unmarshal([]byte(methods), &a.UsedMethods); err != nil {
		return nil, fmt.Errorf("analysis %s: failed to decode used_methods: %w", id, err)
	}
	return &a, nil
}

// SaveReport stores a user report.
func (r *SQLRepository) SaveReport(ctx context.Context, rep *domain.Report) error {
	if rep == nil || rep.ID == "" || rep.Value == "" {
		return fmt.Errorf("%w: report id and value are required", ErrInvalidInput)
	}
	if !rep.Kind.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidInput, rep.Kind)
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO reports (id, type, value, label, description, reporter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rep.ID, string(rep.Kind), rep.Value, string(rep.Label),
		rep.Description, rep.Reporter, rep.CreatedAt,
	)
	return err
}

// ListReports lists the reports filed against (kind, value), oldest first.
func (r *SQLRepository) ListReports(ctx context.Context, kind domain.InputKind, value string) ([]*domain.Report, error) {
	query := `
		SELECT id, type, value, label, description, reporter, created_at
		FROM reports
		WHERE type = ? AND value = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(kind), value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		var rep domain.Report
		var kind, label string
		var description, reporter sql.NullString

		if err := rows.Scan(&rep.ID, &kind, &rep.Value, &label, &description, &reporter, &rep.CreatedAt); err != nil {
			return nil, err
		}
		rep.Kind = domain.InputKind(kind)
		rep.Label = domain.Label(label)
		rep.Description = description.String
		rep.Reporter = reporter.String
		reports = append(reports, &rep)
	}
	return reports, rows.Err()
}

// SaveRuleConfig inserts or updates a scoring rule.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if rule.Expression == "" {
		return fmt.Errorf("%w: rule expression is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO rule_configs (id, name, description, type, expression, increment, reason, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			expression = excluded.expression,
			increment = excluded.increment,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, string(rule.Kind), rule.Expression,
		rule.Increment, rule.Reason, boolToInt(rule.Enabled), now, now,
	)
	return err
}

// ListRuleConfigs lists every stored rule ordered by ID.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, type, expression, increment, reason, enabled
		FROM rule_configs
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RuleConfig
	for rows.Next() {
		var rule domain.RuleConfig
		var description, kind sql.NullString
		var enabled int

		if err := rows.Scan(&rule.ID, &rule.Name, &description, &kind, &rule.Expression,
			&rule.Increment, &rule.Reason, &enabled); err != nil {
			return nil, err
		}
		rule.Description = description.String
		rule.Kind = domain.InputKind(kind.String)
		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $N for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
