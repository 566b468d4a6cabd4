package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"droc/internal/logging"
	"droc/internal/model"
	"droc/internal/store"
)

// EventPlanCompleted is sent to a plan's callback URL once it is stored.
const EventPlanCompleted = "plan.completed"

type Publisher struct {
	Store store.Store
	Log   logging.Logger
	now   func() time.Time
}

func NewPublisher(s store.Store, log logging.Logger) *Publisher {
	return &Publisher{Store: s, Log: logging.OrNop(log), now: time.Now}
}

// Event is the webhook envelope.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit queues one event for url. The event id doubles as the dedup key, so
// emitting the same id twice delivers once.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType, eventID, url, secret string, data any) (string, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	body, err := json.Marshal(Event{
		ID:       eventID,
		Type:     eventType,
		TenantID: tenantID,
		TS:       now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return "", err
	}
	id, err := p.Store.EnqueueWebhook(ctx, tenantID, eventType, url, secret, body)
	if err != nil {
		logging.OrNop(p.Log).Error("webhook enqueue failed", "event", eventType, "tenant", tenantID, "err", err)
		return "", err
	}
	logging.OrNop(p.Log).Debug("webhook queued", "event", eventType, "delivery", id)
	return id, nil
}

// PlanCompletedData is the data of a plan.completed event.
type PlanCompletedData struct {
	model.PlanSummary
	Sizes []int `json:"sizes"`
}

// PlanCompleted queues plan.completed for res. An empty url is a no-op.
func (p *Publisher) PlanCompleted(ctx context.Context, res model.PlanResult, url, secret string) error {
	if url == "" {
		return nil
	}
	data := PlanCompletedData{PlanSummary: res.Summary(), Sizes: res.Sizes()}
	_, err := p.Emit(ctx, res.TenantID, EventPlanCompleted, "evt_"+res.PlanID, url, secret, data)
	return err
}
