// Package blacklist serves known-bad values from the repository behind a
// short-lived lookup cache.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// CacheNamespace scopes blacklist entries in the shared cache.
const CacheNamespace = "blacklist"

// DefaultCacheTTL applies when the configured TTL is zero.
const DefaultCacheTTL = time.Minute

// ErrInvalidTrust is returned for trust scores outside [0, 1].
var ErrInvalidTrust = errors.New("trust_score must be within [0, 1]")

// cachedLookup is the cache record for both hits and misses.
type cachedLookup struct {
	Listed bool                   `json:"listed"`
	Entry  *domain.BlacklistEntry `json:"entry,omitempty"`
}

// Service implements analyzer.BlacklistLookup on top of a repository.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewService creates a blacklist service. cache and m may be nil.
func NewService(repo domain.Repository, cache domain.Cache, ttl time.Duration, m *metrics.Metrics) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
	}
}

// Lookup returns the entry for (kind, value), or nil when the value is not
// listed. Cache failures fall through to the repository.
func (s *Service) Lookup(ctx context.Context, kind domain.InputKind, value string) (*domain.BlacklistEntry, error) {
	key := cacheKey(kind, value)

	if cached, ok := s.fromCache(ctx, key); ok {
		s.metrics.BlacklistLookup(resultOf(cached.Listed))
		return cached.Entry, nil
	}

	entry, err := s.repo.LookupBlacklist(ctx, kind, value)
	if errors.Is(err, repository.ErrNotFound) {
		entry, err = nil, nil
	}
	if err != nil {
		s.metrics.BlacklistLookup(metrics.ResultError)
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}

	s.toCache(ctx, key, cachedLookup{Listed: entry != nil, Entry: entry})
	s.metrics.BlacklistLookup(resultOf(entry != nil))
	return entry, nil
}

// Add lists value with the given trust. A nil trust means domain.DefaultTrust.
func (s *Service) Add(ctx context.Context, kind domain.InputKind, value string, trust *float64, source string) (*domain.BlacklistEntry, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: value is required", repository.ErrInvalidInput)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported type %q", repository.ErrInvalidInput, kind)
	}

	t := domain.DefaultTrust
	if trust != nil {
		t = *trust
	}
	if t < 0 || t > 1 {
		return nil, fmt.Errorf("%w: %w", repository.ErrInvalidInput, ErrInvalidTrust)
	}

	entry := &domain.BlacklistEntry{
		Kind:    kind,
		Value:   value,
		Trust:   t,
		Source:  source,
		AddedAt: time.Now().UTC(),
	}
	if err := s.repo.SaveBlacklistEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.invalidate(ctx, kind, value)
	return entry, nil
}

// Remove unlists value.
func (s *Service) Remove(ctx context.Context, kind domain.InputKind, value string) error {
	if err := s.repo.DeleteBlacklistEntry(ctx, kind, value); err != nil {
		return err
	}
	s.invalidate(ctx, kind, value)
	return nil
}

// List returns the stored entries, optionally for one kind.
func (s *Service) List(ctx context.Context, kind domain.InputKind) ([]*domain.BlacklistEntry, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported type %q", repository.ErrInvalidInput, kind)
	}
	return s.repo.ListBlacklist(ctx, kind)
}

// Seed upserts the reference entries and returns how many were written.
func (s *Service) Seed(ctx context.Context) (int, error) {
	for i, e := range SeedEntries() {
		trust := e.Trust
		if _, err := s.Add(ctx, e.Kind, e.Value, &trust, domain.SourceSeed); err != nil {
			return i, fmt.Errorf("seed %s %q: %w", e.Kind, e.Value, err)
		}
	}
	return len(SeedEntries()), nil
}

// SeedEntries is the reference blacklist loaded by Seed.
func SeedEntries() []domain.BlacklistEntry {
	return []domain.BlacklistEntry{
		{Kind: domain.KindPhone, Value: "+1-900-555-0199", Trust: 0.9},
		{Kind: domain.KindPhone, Value: "+91-9000000000", Trust: 0.85},
		{Kind: domain.KindPhone, Value: "1900555", Trust: 0.9},
		{Kind: domain.KindPhone, Value: "+1-888-SCAM-NOW", Trust: 0.95},
		{Kind: domain.KindURL, Value: "http://phishing-site.com", Trust: 0.95},
		{Kind: domain.KindURL, Value: "https://fake-bank-login.ru", Trust: 0.98},
		{Kind: domain.KindURL, Value: "bit.ly/scam123", Trust: 0.7},
	}
}

func (s *Service) fromCache(ctx context.Context, key string) (cachedLookup, bool) {
	var out cachedLookup
	if s.cache == nil {
		return out, false
	}

	data, err := s.cache.Get(ctx, CacheNamespace, key)
	if err != nil {
		slog.Warn("blacklist cache read failed", "error", err)
		s.metrics.BlacklistCache(metrics.ResultError)
		return out, false
	}
	if data == nil {
		s.metrics.BlacklistCache(metrics.ResultMiss)
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Warn("discarding corrupt blacklist cache entry", "error", err)
		s.metrics.BlacklistCache(metrics.ResultError)
		return out, false
	}

	s.metrics.BlacklistCache(metrics.ResultHit)
	return out, true
}

func (s *Service) toCache(ctx context.Context, key string, v cachedLookup) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, CacheNamespace, key, data, s.ttl); err != nil {
		slog.Warn("blacklist cache write failed", "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, kind domain.InputKind, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheNamespace, cacheKey(kind, value)); err != nil {
		slog.Warn("blacklist cache invalidation failed",
			"kind", kind,
			"error", err,
		)
	}
}

func cacheKey(kind domain.InputKind, value string) string {
	return string(kind) + ":" + value
}

func resultOf(listed bool) string {
	if listed {
		return metrics.ResultHit
	}
	return metrics.ResultMiss
}
