package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"droc/internal/model"
)

// OptimizerConfigHandler handles GET /v1/optimizer/config: the service
// defaults, the caller's tenant override and the options a plan would use.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	defaults := s.Planner.Options()
	cfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
		return
	}
	effective := defaults
	if cfg != nil {
		effective = cfg.Apply(defaults)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults":  model.EffectiveConfig(defaults),
		"tenant":    cfg,
		"effective": model.EffectiveConfig(effective),
	})
}

// AdminOptimizerConfigHandler handles GET and PUT /v1/admin/optimizer/config.
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
			return
		}
		if cfg == nil {
			cfg = &model.OptimizerConfig{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config *model.OptimizerConfig `json:"config"`
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := validateOptimizerConfig(body.Config); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, *body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		s.Log.Info("optimizer config updated", "tenant", p.Tenant)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": body.Config})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics?planDate=.
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	planDate := r.URL.Query().Get("planDate")
	if planDate == "" {
		writeProblem(w, http.StatusBadRequest, "Missing planDate", "", r.URL.Path)
		return
	}
	items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, planDate)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
			return
		}
		limit = n
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, r.URL.Query().Get("status"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
