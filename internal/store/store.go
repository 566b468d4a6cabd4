package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"droc/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plans
	SavePlan(ctx context.Context, res model.PlanResult) (model.PlanResult, error)
	GetPlan(ctx context.Context, tenantID, planID string) (model.PlanResult, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanSummary, string, error)

	// Metrics
	SavePlanMetrics(ctx context.Context, m model.PlanMetrics) error
	ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]model.PlanMetrics, error)

	// Optimizer config per tenant; nil when the tenant has no override
	GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status string, limit int) ([]WebhookDelivery, error)

	Ping(ctx context.Context) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidCursor is returned by ListPlans for a cursor it did not issue.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// parseCursor normalises a plan id cursor.
func parseCursor(cursor string) (string, error) {
	id, err := uuid.Parse(cursor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return id.String(), nil
}

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

// newPlanID returns a time-ordered id so listing by id follows creation order.
func newPlanID() string {
	return mustV7().String()
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
