package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"droc/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	plans      map[string]model.PlanResult            // id -> plan
	plansByTen map[string][]string                    // tenant -> plan ids in creation order
	planMx     map[string]map[string][]model.PlanMetrics // tenant -> planDate -> metrics
	optCfg     map[string]model.OptimizerConfig       // tenant -> config
	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveryOrder      []string
	deliveriesByTenant map[string][]string // tenant -> delivery ids
	dedup              map[string]string   // tenant|event|url|key -> delivery id

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		plans:              map[string]model.PlanResult{},
		plansByTen:         map[string][]string{},
		planMx:             map[string]map[string][]model.PlanMetrics{},
		optCfg:             map[string]model.OptimizerConfig{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		dedup:              map[string]string{},
		now:                time.Now,
	}
}

type memDelivery struct {
	WebhookDelivery
	DeliveredAt *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// Plans

func (m *Memory) SavePlan(ctx context.Context, res model.PlanResult) (model.PlanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.PlanID == "" {
		res.PlanID = newPlanID()
	}
	if res.CreatedAt == "" {
		res.CreatedAt = m.now().UTC().Format(time.RFC3339)
	}
	if _, exists := m.plans[res.PlanID]; !exists {
		m.plansByTen[res.TenantID] = append(m.plansByTen[res.TenantID], res.PlanID)
	}
	m.plans[res.PlanID] = res
	return res, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, planID string) (model.PlanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok || p.TenantID != tenantID {
		return model.PlanResult{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	ids := m.plansByTen[tenantID]
	start := 0
	if cursor != "" {
		c, err := parseCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		// ids are time-ordered, so creation order is id order
		start = slices.IndexFunc(ids, func(id string) bool { return id > c })
		if start < 0 {
			start = len(ids)
		}
	}
	out := []model.PlanSummary{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.plans[ids[i]].Summary())
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

// Metrics

func (m *Memory) SavePlanMetrics(ctx context.Context, pm model.PlanMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planMx[pm.TenantID] == nil {
		m.planMx[pm.TenantID] = map[string][]model.PlanMetrics{}
	}
	items := m.planMx[pm.TenantID][pm.PlanDate]
	if i := slices.IndexFunc(items, func(it model.PlanMetrics) bool { return it.PlanID == pm.PlanID }); i >= 0 {
		items[i] = pm
	} else {
		items = append(items, pm)
	}
	m.planMx[pm.TenantID][pm.PlanDate] = items
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]model.PlanMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PlanMetrics{}, m.planMx[tenantID][planDate]...), nil
}

// Optimizer config

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[tenantID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = cfg
	return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, ok := m.dedup[key]; ok {
		return id, nil
	}
	id := mustV7().String()
	m.deliveries[id] = &memDelivery{WebhookDelivery: WebhookDelivery{
		ID: id, TenantID: tenantID, EventType: eventType, URL: url, Secret: secret,
		Payload: payload, Status: DeliveryPending, NextAttemptAt: m.now(),
	}}
	m.deliveryOrder = append(m.deliveryOrder, id)
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.dedup[key] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		d.LastError = ""
		now := m.now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status string, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []WebhookDelivery{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if status == "" || d.Status == status {
			out = append(out, d.WebhookDelivery)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
