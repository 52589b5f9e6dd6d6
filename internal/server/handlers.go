package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tests, err := s.store.ListTests(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// OptimizeRequest asks for one optimization cycle. Rules and Preset are
// mutually exclusive; with neither, the balanced preset applies.
type OptimizeRequest struct {
	CampaignID string           `json:"campaign_id"`
	Preset     string           `json:"preset,omitempty"`
	Rules      []optimizer.Rule `json:"rules,omitempty"`
	DatePreset string           `json:"date_preset,omitempty"`
	DryRun     bool             `json:"dry_run"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.CampaignID == "" {
		http.Error(w, "campaign_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Rules) > 0 && req.Preset != "" {
		http.Error(w, "rules and preset are mutually exclusive", http.StatusBadRequest)
		return
	}

	rules := req.Rules
	if len(rules) == 0 {
		var err error
		rules, err = optimizer.LookupPreset(orDefault(req.Preset, "balanced"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	report, err := s.engine.RunOptimization(r.Context(), req.CampaignID, rules, optimizer.Options{
		Window: optimizer.Window{Preset: req.DatePreset},
		DryRun: req.DryRun,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"presets": optimizer.PresetNames()})
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/presets/")
	rules, err := optimizer.LookupPreset(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "rules": rules})
}

// CreateTestRequest creates an A/B test over existing ads.
type CreateTestRequest struct {
	Name       string              `json:"name"`
	CampaignID string              `json:"campaign_id"`
	AdSetID    string              `json:"adset_id"`
	Metric     string              `json:"metric"`
	AutoApply  bool                `json:"auto_apply"`
	Variants   []store.TestVariant `json:"variants"`
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tests, err := s.store.ListTests(r.Context())
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if tests == nil {
			tests = []*store.ABTest{}
		}
		writeJSON(w, http.StatusOK, tests)

	case http.MethodPost:
		var req CreateTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if msg := validateCreateTest(req); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}

		test, err := s.store.CreateTest(r.Context(), req.Name, req.CampaignID, req.AdSetID, req.Metric, req.AutoApply, req.Variants)
		if err != nil {
			s.log.Error("create test failed", zap.Error(err))
			http.Error(w, "Failed to create test", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, test)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func validateCreateTest(req CreateTestRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if req.AdSetID == "" {
		return "adset_id is required"
	}
	if len(req.Variants) < 2 {
		return "at least two variants are required"
	}
	if _, err := optimizer.ParseMetric(req.Metric); err != nil {
		return err.Error()
	}
	for _, v := range req.Variants {
		if v.AdID == "" {
			return "every variant needs an ad_id"
		}
	}
	return ""
}

// handleTest routes /api/abtests/{id} and /api/abtests/{id}/evaluate.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/abtests/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		test, err := s.store.GetTest(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, test)

	case sub == "" && r.Method == http.MethodDelete:
		if err := s.store.DeleteTest(r.Context(), id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case sub == "evaluate" && r.Method == http.MethodPost:
		s.handleEvaluate(w, r, id)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// EvaluateRequest optionally overrides the test's stored auto-apply flag.
type EvaluateRequest struct {
	AutoApply *bool `json:"auto_apply,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, id string) {
	var req EvaluateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	result, err := s.evaluator.Evaluate(r.Context(), id, req.AutoApply)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Test not found", http.StatusNotFound)
			return
		}
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// writeEngineError maps engine failures onto HTTP statuses: bad rules are
// the caller's fault, a dead token is an upstream failure.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, optimizer.ErrInvalidRule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case optimizer.IsAuthError(err):
		s.log.Error("platform auth failed", zap.Error(err))
		http.Error(w, "Platform authentication failed", http.StatusBadGateway)
	default:
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Test not found", http.StatusNotFound)
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
