package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"droc/internal/model"
	"droc/internal/partition"
	"droc/internal/store"
)

const maxBodyBytes = 8 << 20

// CreatePlanHandler handles POST /v1/plans. With ?async=true it answers 202
// at once and the result is delivered on the plan's event stream.
func (s *Server) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req model.PlanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID != "" && req.TenantID != p.Tenant && !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "cannot plan for another tenant", r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}
	preq, err := req.ToPartition()
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	async := false
	if v := r.URL.Query().Get("async"); v != "" {
		if async, err = strconv.ParseBool(v); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid async flag", err.Error(), r.URL.Path)
			return
		}
	}

	planID := newPlanID()
	if async {
		// registered before 202 so an immediate stream request finds it
		s.running.Store(planTopic(req.TenantID, planID), struct{}{})
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			_, _ = s.execute(context.WithoutCancel(r.Context()), planID, req, preq, nil)
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{
			"planId": planID,
			"status": "running",
			"events": "/v1/plans/" + planID + "/events/stream",
		})
		return
	}
	res, err := s.execute(r.Context(), planID, req, preq, nil)
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// execute runs, stores and announces one plan. Progress and the terminal
// result or error are published on the plan's tenant-scoped topic; observe,
// when set, sees every progress event too. The plan counts as running until
// its terminal event is out.
func (s *Server) execute(ctx context.Context, planID string, req model.PlanRequest, preq partition.Request, observe func(partition.Event)) (model.PlanResult, error) {
	topic := planTopic(req.TenantID, planID)
	s.running.Store(topic, struct{}{})
	defer s.running.Delete(topic)
	res, err := s.runPlan(ctx, planID, req, preq, func(ev partition.Event) {
		s.Broker.Publish(topic, newEvent(EventProgress, ev))
		if observe != nil {
			observe(ev)
		}
	})
	if err != nil {
		s.Broker.Publish(topic, newEvent(EventError, planProblem(err, "/v1/plans/"+planID)))
		return model.PlanResult{}, err
	}
	s.Broker.Publish(topic, newEvent(EventResult, res))
	return res, nil
}

// planTopic keys broker traffic by tenant so plan ids never cross tenants.
func planTopic(tenant, planID string) string { return tenant + "/" + planID }

func (s *Server) runPlan(ctx context.Context, planID string, req model.PlanRequest, preq partition.Request, observe func(partition.Event)) (model.PlanResult, error) {
	opts, err := s.optionsFor(ctx, req)
	if err != nil {
		return model.PlanResult{}, err
	}
	plan, err := s.Planner.WithOptions(opts).Plan(ctx, preq, observe)
	if err != nil {
		return model.PlanResult{}, err
	}
	res := model.FromPlan(plan)
	res.PlanID = planID
	res.TenantID = req.TenantID
	res.PlanDate = req.PlanDate
	if res, err = s.Store.SavePlan(ctx, res); err != nil {
		return model.PlanResult{}, fmt.Errorf("save plan: %w", err)
	}
	if err := s.Store.SavePlanMetrics(ctx, model.MetricsFor(res)); err != nil {
		s.Log.Warn("save plan metrics failed", "plan", planID, "err", err)
	}
	if err := s.Pub.PlanCompleted(ctx, res, req.CallbackURL, req.CallbackSecret); err != nil {
		s.Log.Warn("plan webhook not queued", "plan", planID, "err", err)
	}
	s.Log.Info("plan completed", "plan", planID, "tenant", res.TenantID, "clusters", len(res.ClusterIDs), "total_distance_m", res.TotalDistanceM)
	return res, nil
}

// optionsFor layers the tenant's stored overrides and then the request's own
// overrides on the service defaults.
func (s *Server) optionsFor(ctx context.Context, req model.PlanRequest) (partition.Options, error) {
	opts := s.Planner.Options()
	cfg, err := s.Store.GetOptimizerConfig(ctx, req.TenantID)
	if err != nil {
		return partition.Options{}, fmt.Errorf("load optimizer config: %w", err)
	}
	if cfg != nil {
		opts = cfg.Apply(opts)
	}
	return req.Options(opts), nil
}

func planProblem(err error, instance string) Problem {
	switch {
	case errors.Is(err, partition.ErrInvalidConfig):
		return newProblem(http.StatusBadRequest, "Invalid plan request", err.Error(), instance)
	case errors.Is(err, context.DeadlineExceeded):
		return newProblem(http.StatusGatewayTimeout, "Plan timed out", err.Error(), instance)
	case errors.Is(err, context.Canceled):
		return newProblem(http.StatusServiceUnavailable, "Plan cancelled", err.Error(), instance)
	}
	return newProblem(http.StatusInternalServerError, "Plan failed", err.Error(), instance)
}

func (s *Server) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	pr := planProblem(err, r.URL.Path)
	if pr.Status >= 500 {
		s.Log.Error("plan failed", "path", r.URL.Path, "err", err)
	}
	writeProblem(w, pr.Status, pr.Title, pr.Detail, pr.Instance)
}

// ListPlansHandler handles GET /v1/plans.
func (s *Server) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), limit)
	if errors.Is(err, store.ErrInvalidCursor) {
		writeProblem(w, http.StatusBadRequest, "Invalid cursor", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// GetPlanHandler handles GET /v1/plans/{id}.
func (s *Server) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	res, err := s.Store.GetPlan(r.Context(), p.Tenant, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Plan not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

const heartbeatEvery = 15 * time.Second

// PlanEventsHandler handles GET /v1/plans/{id}/events/stream. A stored plan
// gets its result at once; a running one streams progress until it ends.
// Plans of other tenants and unknown ids are 404.
func (s *Server) PlanEventsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	topic := planTopic(p.Tenant, id)
	// subscribed before the lookups, so a plan finishing in between is not missed
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	_, running := s.running.Load(topic)
	res, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
	switch {
	case err == nil:
	case !errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	case !running:
		writeProblem(w, http.StatusNotFound, "Plan not found", "", r.URL.Path)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(evt SSEEvent) bool {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if err == nil {
		send(newEvent(EventResult, res))
		return
	}
	if !send(newEvent("heartbeat", map[string]string{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)})) {
		return
	}

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok || !send(evt) || evt.terminal() {
				return
			}
		case <-ticker.C:
			if !send(newEvent("heartbeat", map[string]string{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)})) {
				return
			}
		}
	}
}

func newPlanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
