package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/blacklist"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Deps are the collaborators served by the API. Any of them may be nil;
// endpoints that need a missing one answer 503.
type Deps struct {
	Analyzer  *analyzer.Analyzer
	Repo      domain.Repository
	Bus       domain.EventBus
	Blacklist *blacklist.Service
	Engine    *rules.Engine
	Metrics   *metrics.Metrics

	Version string

	// Mode is used when a request names none.
	Mode domain.FusionMode

	// History persists analyses and publishes completion events.
	History bool
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.Mode == "" {
		deps.Mode = domain.DefaultMode
	}
	return &Handler{deps: deps}
}

// AnalyzeRequest is the body of the analyze endpoints. /analyze/{kind}
// reads the field named after the kind, or Value; /analyze reads Type
// and Value.
type AnalyzeRequest struct {
	Phone string `json:"phone,omitempty"`
	URL   string `json:"url,omitempty"`
	SMS   string `json:"sms,omitempty"`
	File  string `json:"file,omitempty"`

	Type  domain.InputKind  `json:"type,omitempty"`
	Value string            `json:"value,omitempty"`
	Mode  domain.FusionMode `json:"mode,omitempty"`
}

func (req *AnalyzeRequest) valueFor(kind domain.InputKind) string {
	var v string
	switch kind {
	case domain.KindPhone:
		v = req.Phone
	case domain.KindURL:
		v = req.URL
	case domain.KindSMS:
		v = req.SMS
	case domain.KindFile:
		v = req.File
	}
	if v == "" {
		v = req.Value
	}
	return v
}

// AnalyzeResponse is the verdict returned by the analyze endpoints.
type AnalyzeResponse struct {
	ID string `json:"id"`
	domain.AnalysisResult
}

// AnalyzeKind handles POST /analyze/{kind}.
func (h *Handler) AnalyzeKind(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, domain.InputKind(chi.URLParam(r, "kind")))
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, "")
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, kind domain.InputKind) {
	start := time.Now()
	ctx := r.Context()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if kind == "" {
		kind = req.Type
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported type: "+string(kind))
		return
	}

	value := req.valueFor(kind)
	if value == "" {
		writeError(w, http.StatusBadRequest, string(kind)+" is required")
		return
	}

	if h.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not available")
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = h.deps.Mode
	}

	result, err := h.deps.Analyzer.Analyze(ctx, kind, value, mode)
	if errors.Is(err, analyzer.ErrUnsupportedKind) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("analysis failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	h.deps.Metrics.ObserveAnalysis(string(kind), string(result.Label), time.Since(start))

	resp := AnalyzeResponse{
		ID:             uuid.New().String(),
		AnalysisResult: *result,
	}
	if h.deps.History {
		h.record(r, &domain.Analysis{
			ID:             resp.ID,
			Kind:           kind,
			Value:          value,
			Mode:           mode,
			CreatedAt:      time.Now().UTC(),
			AnalysisResult: *result,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// record stores the analysis and announces it. Failures never affect the
// response.
func (h *Handler) record(r *http.Request, a *domain.Analysis) {
	ctx := r.Context()

	if h.deps.Repo != nil {
		if err := h.deps.Repo.SaveAnalysis(ctx, a); err != nil {
			slog.Error("failed to save analysis", "id", a.ID, "error", err)
		}
	}

	if h.deps.Bus != nil {
		payload, err := json.Marshal(domain.AnalysisEvent{
			ID:         a.ID,
			Kind:       a.Kind,
			Mode:       a.Mode,
			Label:      a.Label,
			Confidence: a.Confidence,
			TraceID:    GetTraceID(ctx),
		})
		if err == nil {
			err = h.deps.Bus.Publish(ctx, domain.TopicAnalysisCompleted, payload)
		}
		if err != nil {
			slog.Error("failed to publish analysis event", "id", a.ID, "error", err)
		}
	}
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	a, err := h.deps.Repo.GetAnalysis(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		slog.Error("failed to get analysis", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get analysis")
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListBlacklist handles GET /blacklist?type=.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blacklist == nil {
		writeError(w, http.StatusServiceUnavailable, "blacklist not available")
		return
	}

	kind := domain.InputKind(r.URL.Query().Get("type"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported type: "+string(kind))
		return
	}

	entries, err := h.deps.Blacklist.List(r.Context(), kind)
	if err != nil {
		slog.Error("failed to list blacklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list blacklist")
		return
	}
	if entries == nil {
		entries = []*domain.BlacklistEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// AddBlacklistRequest is the request body for POST /blacklist.
type AddBlacklistRequest struct {
	Type  domain.InputKind `json:"type"`
	Value string           `json:"value"`
	Trust *float64         `json:"trust_score,omitempty"`
}

// AddBlacklist handles POST /blacklist.
func (h *Handler) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blacklist == nil {
		writeError(w, http.StatusServiceUnavailable, "blacklist not available")
		return
	}

	var req AddBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	entry, err := h.deps.Blacklist.Add(r.Context(), req.Type, req.Value, req.Trust, domain.SourceOperator)
	if errors.Is(err, repository.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to add blacklist entry", "type", req.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add blacklist entry")
		return
	}

	slog.Info("blacklist entry added", "type", entry.Kind, "trust_score", entry.Trust)
	writeJSON(w, http.StatusCreated, entry)
}

// RemoveBlacklist handles DELETE /blacklist/{type}?value=.
func (h *Handler) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blacklist == nil {
		writeError(w, http.StatusServiceUnavailable, "blacklist not available")
		return
	}

	kind := domain.InputKind(chi.URLParam(r, "type"))
	value := r.URL.Query().Get("value")
	if !kind.Valid() || value == "" {
		writeError(w, http.StatusBadRequest, "a supported type and a value are required")
		return
	}

	err := h.deps.Blacklist.Remove(r.Context(), kind, value)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "blacklist entry not found")
		return
	}
	if err != nil {
		slog.Error("failed to remove blacklist entry", "type", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove blacklist entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "blacklist entry removed",
	})
}

// ReportRequest is the request body for POST /reports.
type ReportRequest struct {
	Type        domain.InputKind `json:"type"`
	Value       string           `json:"value"`
	Label       domain.Label     `json:"label,omitempty"`
	Description string           `json:"description,omitempty"`
	Reporter    string           `json:"reporter,omitempty"`
}

// SubmitReport handles POST /reports. The report is queued for the worker.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported type: "+string(req.Type))
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	switch req.Label {
	case "", domain.LabelScam, domain.LabelLikelyScam, domain.LabelSuspicious, domain.LabelBenign:
	default:
		writeError(w, http.StatusBadRequest, "unknown label: "+string(req.Label))
		return
	}

	if h.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	report := &domain.Report{
		Kind:        req.Type,
		Value:       value,
		Label:       req.Label,
		Description: req.Description,
		Reporter:    req.Reporter,
	}
	if err := worker.Publish(r.Context(), h.deps.Bus, report); err != nil {
		slog.Error("failed to queue report", "type", req.Type, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue report")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     report.ID,
		"status": "accepted",
	})
}

// ListRules returns the rules currently loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	loaded := h.deps.Engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// CreateRule validates a rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload it into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil || h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "rule storage not available")
		return
	}

	var rule domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	if err := h.deps.Engine.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}

	if err := h.deps.Repo.SaveRuleConfig(r.Context(), &rule); err != nil {
		slog.Error("failed to save rule config", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil || h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "rule storage not available")
		return
	}

	dbRules, err := h.deps.Repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.deps.Engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", h.deps.Engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.deps.Engine.RulesCount(),
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// Health reports service status. It always answers 200; a broken database
// shows up in the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Database: "disconnected",
		Version:  h.deps.Version,
	}

	if h.deps.Repo != nil && h.deps.Repo.Ping(r.Context()) == nil {
		resp.Database = "connected"
	}
	if h.deps.Analyzer != nil {
		resp.ModelLoaded = h.deps.Analyzer.ModelLoaded()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
