package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/blacklist"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

type testServer struct {
	*Server
	bus *bus.ChannelBus
}

// createTestServer wires a full community stack on a temporary database.
func createTestServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	m := metrics.New()
	bl := blacklist.NewService(repo, cache.NewLRUCache(1000), time.Minute, m)
	an := analyzer.New(analyzer.WithBlacklist(bl), analyzer.WithRules(engine))

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	server := NewServer(cfg, Deps{
		Analyzer:  an,
		Repo:      repo,
		Bus:       eventBus,
		Blacklist: bl,
		Engine:    engine,
		Metrics:   m,
		Version:   "test-v1",
		Mode:      domain.ModeBalanced,
		History:   true,
	})
	return &testServer{Server: server, bus: eventBus}
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func subscribe(t *testing.T, b *bus.ChannelBus, topic string) <-chan *domain.Message {
	t.Helper()
	ch := make(chan *domain.Message, 10)
	sub, err := b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return ch
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("KindField", func(t *testing.T) {
		events := subscribe(t, server.bus, domain.TopicAnalysisCompleted)

		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/phone", map[string]string{
			"phone": "9999999999",
			"mode":  "heuristic",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		resp := decode[AnalyzeResponse](t, rr)
		if resp.ID == "" {
			t.Error("expected analysis id")
		}
		if resp.Label != domain.LabelScam || resp.Confidence != 0.85 {
			t.Errorf("unexpected verdict: %s %.2f", resp.Label, resp.Confidence)
		}
		if len(resp.Explain) != 2 || resp.Explain[1] != "Suspicious pattern detected (10 repeated digits)" {
			t.Errorf("unexpected explain: %v", resp.Explain)
		}

		var ev domain.AnalysisEvent
		if err := json.Unmarshal(receive(t, events).Payload, &ev); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if ev.ID != resp.ID || ev.Label != domain.LabelScam || ev.Kind != domain.KindPhone {
			t.Errorf("unexpected event: %+v", ev)
		}

		rr = doRequest(t, server.Server, http.MethodGet, "/analyses/"+resp.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected stored analysis, got %d: %s", rr.Code, rr.Body.String())
		}
		stored := decode[domain.Analysis](t, rr)
		if stored.Value != "9999999999" || stored.Mode != domain.ModeHeuristic || stored.Label != domain.LabelScam {
			t.Errorf("unexpected stored analysis: %+v", stored)
		}
	})

	t.Run("ValueField", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/url", map[string]string{
			"value": "http://192.168.1.1/login",
			"mode":  "heuristic",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[AnalyzeResponse](t, rr)
		if resp.Label != domain.LabelLikelyScam || resp.Confidence != 0.8 {
			t.Errorf("unexpected verdict: %s %.2f", resp.Label, resp.Confidence)
		}
	})

	t.Run("GenericEndpoint", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze", map[string]string{
			"type":  "file",
			"value": "invoice.exe",
			"mode":  "heuristic",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("DefaultModeIsBalanced", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/phone", map[string]string{
			"phone": "9999999999",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[AnalyzeResponse](t, rr)
		if resp.Label != domain.LabelLikelyScam {
			t.Errorf("expected likely_scam without a model, got %s", resp.Label)
		}
	})

	t.Run("MissingValue", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/phone", map[string]string{"url": "https://example.com"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "phone is required") {
			t.Errorf("unexpected body: %s", rr.Body.String())
		}
	})

	t.Run("UnsupportedKind", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/email", map[string]string{"value": "a@b.c"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/sms", "{not json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownAnalysis", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodGet, "/analyses/does-not-exist", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestMissingDependencies(t *testing.T) {
	server := NewServer(domain.ServerConfig{}, Deps{Version: "bare"})

	rr := doRequest(t, server, http.MethodPost, "/analyze/phone", map[string]string{"phone": "+15551234567"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without analyzer, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 readiness without analyzer, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/health", nil)
	health := decode[HealthResponse](t, rr)
	if health.Status != "healthy" || health.Database != "disconnected" || health.ModelLoaded {
		t.Errorf("unexpected health: %+v", health)
	}

	for _, path := range []string{"/blacklist", "/rules"} {
		rr = doRequest(t, server, http.MethodGet, path, nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, rr.Code)
		}
	}

	rr = doRequest(t, server, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected no metrics route, got %d", rr.Code)
	}
}

func TestBlacklistEndpoints(t *testing.T) {
	server := createTestServer(t)
	const value = "http://bad.example/verify"

	rr := doRequest(t, server.Server, http.MethodPost, "/blacklist", map[string]any{
		"type":        "url",
		"value":       value,
		"trust_score": 0.9,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	entry := decode[domain.BlacklistEntry](t, rr)
	if entry.Trust != 0.9 || entry.Source != domain.SourceOperator {
		t.Errorf("unexpected entry: %+v", entry)
	}

	t.Run("DefaultTrust", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/blacklist", map[string]any{
			"type":  "phone",
			"value": "+15550001111",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rr.Code)
		}
		if e := decode[domain.BlacklistEntry](t, rr); e.Trust != domain.DefaultTrust {
			t.Errorf("expected default trust, got %v", e.Trust)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		for _, body := range []map[string]any{
			{"type": "url", "value": value, "trust_score": 1.5},
			{"type": "url", "value": "  "},
			{"type": "email", "value": "a@b.c"},
		} {
			rr := doRequest(t, server.Server, http.MethodPost, "/blacklist", body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("%v: expected status 400, got %d", body, rr.Code)
			}
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodGet, "/blacklist?type=url", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			Entries []domain.BlacklistEntry `json:"entries"`
			Count   int                     `json:"count"`
		}](t, rr)
		if resp.Count != 1 || resp.Entries[0].Value != value {
			t.Errorf("unexpected listing: %+v", resp)
		}

		rr = doRequest(t, server.Server, http.MethodGet, "/blacklist?type=email", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("AnalysisUsesLookup", func(t *testing.T) {
		rr := doRequest(t, server.Server, http.MethodPost, "/analyze/url", map[string]string{"url": value, "mode": "hybrid"})
		resp := decode[AnalyzeResponse](t, rr)
		if len(resp.UsedMethods) == 0 || resp.UsedMethods[len(resp.UsedMethods)-1] != domain.MethodLookup {
			t.Errorf("expected lookup in used methods, got %v", resp.UsedMethods)
		}
		if resp.Explain[0] != "Found in blacklist (trust: 0.90)" {
			t.Errorf("unexpected explain: %v", resp.Explain)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		path := "/blacklist/url?value=" + url.QueryEscape(value)

		rr := doRequest(t, server.Server, http.MethodDelete, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server.Server, http.MethodDelete, path, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}

		rr = doRequest(t, server.Server, http.MethodDelete, "/blacklist/url", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 without value, got %d", rr.Code)
		}
	})
}

func TestReportsEndpoint(t *testing.T) {
	server := createTestServer(t)
	reports := subscribe(t, server.bus, domain.TopicReportSubmitted)

	rr := doRequest(t, server.Server, http.MethodPost, "/reports", map[string]string{
		"type":        "phone",
		"value":       " +15551234567 ",
		"description": "asked for a card number",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	accepted := decode[map[string]string](t, rr)

	var report domain.Report
	if err := json.Unmarshal(receive(t, reports).Payload, &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.ID != accepted["id"] || report.Value != "+15551234567" || report.Kind != domain.KindPhone {
		t.Errorf("unexpected report: %+v", report)
	}

	for _, body := range []map[string]string{
		{"type": "phone"},
		{"type": "fax", "value": "123"},
		{"type": "url", "value": "http://x.example", "label": "terrible"},
	} {
		rr := doRequest(t, server.Server, http.MethodPost, "/reports", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%v: expected status 400, got %d", body, rr.Code)
		}
	}
}

func TestRulesEndpoints(t *testing.T) {
	server := createTestServer(t)

	rule := map[string]any{
		"id":         "long-sms",
		"name":       "Long SMS",
		"type":       "sms",
		"expression": "f.length > 10",
		"increment":  0.1,
		"reason":     "Unusually long message",
		"enabled":    true,
	}

	rr := doRequest(t, server.Server, http.MethodPost, "/rules", rule)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	countRules := func() int {
		rr := doRequest(t, server.Server, http.MethodGet, "/rules", nil)
		return decode[struct {
			Count int `json:"count"`
		}](t, rr).Count
	}

	if n := countRules(); n != 0 {
		t.Errorf("rule should not be active before reload, got %d", n)
	}

	rr = doRequest(t, server.Server, http.MethodPost, "/rules/reload", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if n := countRules(); n != 1 {
		t.Errorf("expected 1 rule after reload, got %d", n)
	}

	rr = doRequest(t, server.Server, http.MethodPost, "/analyze/sms", map[string]string{
		"sms":  "See you at lunch today",
		"mode": "heuristic",
	})
	resp := decode[AnalyzeResponse](t, rr)
	if resp.Confidence != 0.6 || resp.Explain[0] != "Unusually long message" {
		t.Errorf("rule did not apply: %.2f %v", resp.Confidence, resp.Explain)
	}

	t.Run("Invalid", func(t *testing.T) {
		bad := map[string]any{"id": "bad", "name": "Bad", "expression": "f.length >"}
		if rr := doRequest(t, server.Server, http.MethodPost, "/rules", bad); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad expression, got %d", rr.Code)
		}

		missing := map[string]any{"id": "x"}
		if rr := doRequest(t, server.Server, http.MethodPost, "/rules", missing); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for missing fields, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := doRequest(t, server.Server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	health := decode[HealthResponse](t, rr)
	if health.Status != "healthy" || health.Database != "connected" || health.Version != "test-v1" {
		t.Errorf("unexpected health: %+v", health)
	}
	if health.ModelLoaded {
		t.Error("no model was loaded")
	}

	rr = doRequest(t, server.Server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected ready, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := createTestServer(t)

	doRequest(t, server.Server, http.MethodPost, "/analyze/url", map[string]string{"url": "https://example.com"})

	rr := doRequest(t, server.Server, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "kestrel_analyses_total") {
		t.Error("expected analysis counter in metrics output")
	}
}

func TestMiddleware(t *testing.T) {
	server := createTestServer(t)

	t.Run("Preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/analyze/phone", nil)
		req.Header.Set("Origin", "https://app.example")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Errorf("unexpected allow origin %q", got)
		}
	})

	t.Run("RequestID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if got := rr.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("expected request id to be echoed, got %q", got)
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected a trace id header")
		}
	})

	t.Run("Recover", func(t *testing.T) {
		h := RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
