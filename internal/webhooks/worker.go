package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"droc/internal/logging"
	"droc/internal/metrics"
	"droc/internal/store"
)

const (
	DefaultMaxAttempts     = 5
	DefaultDeliveryTimeout = 10 * time.Second
	defaultBatch           = 50
	fetchTimeout           = 5 * time.Second
)

// Worker polls the store for due deliveries and POSTs them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Log         logging.Logger
	MaxAttempts int
	Interval    time.Duration
	// DeliveryTimeout bounds one POST; each delivery in a batch gets its own.
	DeliveryTimeout time.Duration

	now func() time.Time
}

func NewWorker(s store.Store, maxAttempts int, log logging.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Log:         logging.OrNop(log),
		MaxAttempts:     maxAttempts,
		Interval:        time.Second,
		DeliveryTimeout: DefaultDeliveryTimeout,
		now:             time.Now,
	}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) int {
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	items, err := w.Store.FetchDueWebhookDeliveries(fctx, defaultBatch)
	cancel()
	if err != nil {
		w.log().Warn("webhook fetch failed", "err", err)
		return 0
	}
	for _, it := range items {
		// shutting down: leave the rest due without burning an attempt
		if ctx.Err() != nil {
			break
		}
		w.deliver(ctx, it)
	}
	return len(items)
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	timeout := w.DeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	code, latency, err := w.post(pctx, it)
	cancel()
	success := err == nil
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	}

	// the outcome is recorded even when the post ran out of time
	ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
	defer cancel()
	status := "delivered"
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "failed"
		w.log().Warn("webhook delivery failed", "delivery", it.ID, "event", it.EventType, "attempts", it.Attempts+1, "err", lastErr)
		err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
	default:
		status = "retry"
		next := w.clock().Add(nextBackoff(it.Attempts))
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	if err != nil {
		w.log().Error("webhook state update failed", "delivery", it.ID, "err", err)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func (w *Worker) post(ctx context.Context, it store.WebhookDelivery) (code, latencyMs int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latencyMs, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latencyMs, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.StatusCode, latencyMs, nil
}

func (w *Worker) log() logging.Logger { return logging.OrNop(w.Log) }

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func nextBackoff(attempts int) time.Duration {
	attempts = min(max(attempts, 0), 10)
	return min(time.Second*time.Duration(1<<attempts), time.Hour)
}
