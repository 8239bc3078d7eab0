package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("BlacklistRoundTrip", func(t *testing.T) {
		entry := &domain.BlacklistEntry{
			Kind:   domain.KindPhone,
			Value:  "+79991234567",
			Trust:  0.9,
			Source: domain.SourceSeed,
		}
		if err := repo.SaveBlacklistEntry(ctx, entry); err != nil {
			t.Fatalf("SaveBlacklistEntry failed: %v", err)
		}

		got, err := repo.LookupBlacklist(ctx, domain.KindPhone, "+79991234567")
		if err != nil {
			t.Fatalf("LookupBlacklist failed: %v", err)
		}
		if got.Trust != 0.9 {
			t.Errorf("expected trust 0.9, got %v", got.Trust)
		}
		if got.Source != domain.SourceSeed {
			t.Errorf("expected source seed, got %s", got.Source)
		}
		if got.AddedAt.IsZero() {
			t.Error("expected added_at to be set")
		}
	})

	t.Run("BlacklistLookupIsPerKind", func(t *testing.T) {
		_, err := repo.LookupBlacklist(ctx, domain.KindURL, "+79991234567")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("BlacklistUpsertReplacesTrust", func(t *testing.T) {
		entry := &domain.BlacklistEntry{
			Kind:   domain.KindPhone,
			Value:  "+79991234567",
			Trust:  0.5,
			Source: domain.SourceOperator,
		}
		if err := repo.SaveBlacklistEntry(ctx, entry); err != nil {
			t.Fatalf("SaveBlacklistEntry failed: %v", err)
		}

		got, err := repo.LookupBlacklist(ctx, domain.KindPhone, "+79991234567")
		if err != nil {
			t.Fatalf("LookupBlacklist failed: %v", err)
		}
		if got.Trust != 0.5 || got.Source != domain.SourceOperator {
			t.Errorf("expected updated entry, got trust=%v source=%s", got.Trust, got.Source)
		}
	})

	t.Run("BlacklistValidation", func(t *testing.T) {
		err := repo.SaveBlacklistEntry(ctx, &domain.BlacklistEntry{Kind: "email", Value: "x"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for bad kind, got %v", err)
		}
		err = repo.SaveBlacklistEntry(ctx, &domain.BlacklistEntry{Kind: domain.KindURL, Value: "x", Trust: 1.5})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for bad trust, got %v", err)
		}
	})

	t.Run("ListAndDeleteBlacklist", func(t *testing.T) {
		repo.SaveBlacklistEntry(ctx, &domain.BlacklistEntry{Kind: domain.KindURL, Value: "http://bit.ly/scam", Trust: 0.7})

		all, err := repo.ListBlacklist(ctx, "")
		if err != nil {
			t.Fatalf("ListBlacklist failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 entries, got %d", len(all))
		}

		urls, _ := repo.ListBlacklist(ctx, domain.KindURL)
		if len(urls) != 1 {
			t.Errorf("expected 1 url entry, got %d", len(urls))
		}

		if err := repo.DeleteBlacklistEntry(ctx, domain.KindURL, "http://bit.ly/scam"); err != nil {
			t.Fatalf("DeleteBlacklistEntry failed: %v", err)
		}
		if err := repo.DeleteBlacklistEntry(ctx, domain.KindURL, "http://bit.ly/scam"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("TrainingExamples", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Hour)
		for i, raw := range []string{"+79991234567", "+79161234567", "88005553535"} {
			ex := &domain.TrainingExample{
				ID:          raw,
				Kind:        domain.KindPhone,
				Raw:         raw,
				Label:       domain.LabelScam,
				Features:    map[string]any{"length": 11, "is_premium": true},
				IsSynthetic: i == 0,
				CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.SaveTrainingExample(ctx, ex); err != nil {
				t.Fatalf("SaveTrainingExample failed: %v", err)
			}
		}

		n, err := repo.CountTrainingExamples(ctx)
		if err != nil {
			t.Fatalf("CountTrainingExamples failed: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 examples, got %d", n)
		}

		examples, err := repo.ListTrainingExamples(ctx, domain.KindPhone, 2)
		if err != nil {
			t.Fatalf("ListTrainingExamples failed: %v", err)
		}
		if len(examples) != 2 {
			t.Fatalf("expected 2 examples with limit, got %d", len(examples))
		}
		if examples[0].ID != "+79991234567" || !examples[0].IsSynthetic {
			t.Errorf("expected oldest synthetic example first, got %+v", examples[0])
		}
		// JSON numbers decode as float64
		if examples[0].Features["length"] != float64(11) {
			t.Errorf("expected length feature 11, got %v", examples[0].Features["length"])
		}
		if examples[0].Features["is_premium"] != true {
			t.Errorf("expected is_premium true, got %v", examples[0].Features["is_premium"])
		}
	})

	t.Run("SaveAndGetAnalysis", func(t *testing.T) {
		a := &domain.Analysis{
			ID:        "analysis-001",
			Kind:      domain.KindURL,
			Value:     "http://192.168.1.1/login",
			Mode:      domain.ModeBalanced,
			CreatedAt: time.Now().UTC(),
			AnalysisResult: domain.AnalysisResult{
				Label:       domain.LabelLikelyScam,
				Confidence:  0.7,
				Explain:     []string{"IP address in URL"},
				UsedMethods: []string{domain.MethodHeuristic, domain.MethodLookup},
			},
		}
		if err := repo.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		got, err := repo.GetAnalysis(ctx, "analysis-001")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got.Label != domain.LabelLikelyScam || got.Confidence != 0.7 {
			t.Errorf("unexpected verdict: %s %v", got.Label, got.Confidence)
		}
		if len(got.Explain) != 1 || got.Explain[0] != "IP address in URL" {
			t.Errorf("unexpected explain: %v", got.Explain)
		}
		if len(got.UsedMethods) != 2 || got.UsedMethods[1] != domain.MethodLookup {
			t.Errorf("unexpected used_methods: %v", got.UsedMethods)
		}

		if _, err := repo.GetAnalysis(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Reports", func(t *testing.T) {
		for _, id := range []string{"r1", "r2"} {
			rep := &domain.Report{
				ID:       id,
				Kind:     domain.KindSMS,
				Value:    "You won a prize",
				Label:    domain.LabelScam,
				Reporter: "tester",
			}
			if err := repo.SaveReport(ctx, rep); err != nil {
				t.Fatalf("SaveReport failed: %v", err)
			}
		}

		reports, err := repo.ListReports(ctx, domain.KindSMS, "You won a prize")
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(reports) != 2 {
			t.Errorf("expected 2 reports, got %d", len(reports))
		}
	})

	t.Run("RuleConfigs", func(t *testing.T) {
		rule := &domain.RuleConfig{
			ID:         "rule-b",
			Name:       "Long SMS",
			Kind:       domain.KindSMS,
			Expression: "f.length > 200",
			Increment:  0.1,
			Reason:     "Very long message",
			Enabled:    true,
		}
		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}
		repo.SaveRuleConfig(ctx, &domain.RuleConfig{
			ID: "rule-a", Name: "Any", Expression: "score > 0.9", Reason: "High", Enabled: false,
		})

		rule.Increment = 0.2
		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig update failed: %v", err)
		}

		rules, err := repo.ListRuleConfigs(ctx)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(rules))
		}
		if rules[0].ID != "rule-a" || rules[0].Enabled {
			t.Errorf("expected disabled rule-a first, got %+v", rules[0])
		}
		if rules[1].Increment != 0.2 || rules[1].Kind != domain.KindSMS {
			t.Errorf("expected updated rule-b, got %+v", rules[1])
		}
	})
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	n, err := repo.CountTrainingExamples(context.Background())
	if err != nil {
		t.Fatalf("CountTrainingExamples failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty database, got %d rows", n)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected postgres rebind: %s", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
	want := "host=localhost port=5432 user=u password=p dbname=kestrel sslmode=disable"
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}
}
