package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droc/internal/model"
	"droc/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
	Next          *time.Time
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func newTestWorker(rs *recordStore, client *http.Client, maxAttempts int) *Worker {
	w := NewWorker(rs, maxAttempts, nil)
	w.HTTP = client
	return w
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	payload := []byte(`{"id":"evt1"}`)
	id, err := rs.Memory.EnqueueWebhook(t.Context(), "t1", EventPlanCompleted, srv.URL, "secret", payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, 1, w.processOnce(t.Context()))

	assert.Equal(t, EventPlanCompleted, gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig))
	require.Len(t, rs.marks, 1)
	assert.True(t, rs.marks[0].Success)
	assert.Equal(t, 200, rs.marks[0].Code)

	// delivered items are not fetched again
	assert.Equal(t, 0, w.processOnce(t.Context()))
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 2)
	_, err := rs.Memory.EnqueueWebhook(t.Context(), "t1", EventPlanCompleted, srv.URL, "", []byte(`{}`))
	require.NoError(t, err)

	w.processOnce(t.Context())
	require.Len(t, rs.marks, 1)
	assert.False(t, rs.marks[0].Success)
	assert.Equal(t, 500, rs.marks[0].Code)
	assert.Equal(t, "status 500", rs.marks[0].LastErr)
	require.NotNil(t, rs.marks[0].Next)
	assert.Empty(t, rs.fails)

	// pretend the backoff elapsed
	require.NoError(t, rs.Memory.MarkWebhookDelivery(t.Context(), rs.marks[0].ID, false, ptr(time.Now().Add(-time.Second)), "status 500", 500, 1))

	w.processOnce(t.Context())
	require.Len(t, rs.fails, 1)
	failed, err := rs.ListWebhookDeliveries(t.Context(), "t1", store.DeliveryFailed, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestWorkerUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, &http.Client{Timeout: time.Second}, 1)
	_, err := rs.Memory.EnqueueWebhook(t.Context(), "t1", EventPlanCompleted, url, "", []byte(`{}`))
	require.NoError(t, err)
	w.processOnce(t.Context())
	require.Len(t, rs.fails, 1)
	assert.Equal(t, 0, rs.fails[0].Code)
	assert.NotEmpty(t, rs.fails[0].LastErr)
}

func TestWorkerTimesOutEachDeliverySeparately(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(120 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(200)
	}))
	defer slow.Close()
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hung.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, &http.Client{}, 3)
	w.DeliveryTimeout = 200 * time.Millisecond

	hungID, err := rs.Memory.EnqueueWebhook(t.Context(), "t1", EventPlanCompleted, hung.URL, "", []byte(`{}`))
	require.NoError(t, err)
	for range 3 {
		_, err := rs.Memory.EnqueueWebhook(t.Context(), "t1", EventPlanCompleted, slow.URL, "", []byte(`{}`))
		require.NoError(t, err)
	}

	// the batch takes well over one timeout in total
	assert.Equal(t, 4, w.processOnce(t.Context()))

	require.Len(t, rs.marks, 4)
	for _, m := range rs.marks {
		if m.ID == hungID {
			assert.False(t, m.Success)
			assert.NotNil(t, m.Next)
			assert.NotEmpty(t, m.LastErr)
			continue
		}
		assert.True(t, m.Success, m.LastErr)
		assert.Equal(t, 200, m.Code)
	}
}

func TestWorkerStopsBatchOnShutdown(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, &http.Client{}, 3)
	_, err := rs.Memory.EnqueueWebhook(t.Context(), "t1", EventPlanCompleted, "http://127.0.0.1:1", "", []byte(`{}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	w.processOnce(ctx)
	assert.Empty(t, rs.marks)
	assert.Empty(t, rs.fails)

	due, err := rs.FetchDueWebhookDeliveries(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, time.Second, nextBackoff(0))
	assert.Equal(t, 8*time.Second, nextBackoff(3))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestSignatureRoundTrip(t *testing.T) {
	sig := SignHMAC("k", []byte("body"))
	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMAC("k", []byte("body"), sig))
	assert.False(t, VerifyHMAC("k", []byte("other"), sig))
	assert.False(t, VerifyHMAC("k", []byte("body"), "zz"))
}

func TestPublisherPlanCompleted(t *testing.T) {
	m := store.NewMemory()
	p := NewPublisher(m, nil)
	p.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	res := model.PlanResult{PlanID: "p1", TenantID: "t1", ClusterIDs: [][]int{{0, 1}, {2}}, TotalDistanceM: 42}

	require.NoError(t, p.PlanCompleted(t.Context(), res, "", ""))
	require.NoError(t, p.PlanCompleted(t.Context(), res, "http://hook", "s"))
	require.NoError(t, p.PlanCompleted(t.Context(), res, "http://hook", "s"))

	due, err := m.FetchDueWebhookDeliveries(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	var ev struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		TS   string `json:"ts"`
		Data struct {
			PlanID string `json:"planId"`
			Sizes  []int  `json:"sizes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(due[0].Payload, &ev))
	assert.Equal(t, "evt_p1", ev.ID)
	assert.Equal(t, EventPlanCompleted, ev.Type)
	assert.Equal(t, "2025-01-02T03:04:05Z", ev.TS)
	assert.Equal(t, "p1", ev.Data.PlanID)
	assert.Equal(t, []int{2, 1}, ev.Data.Sizes)
}

func ptr[T any](v T) *T { return &v }
