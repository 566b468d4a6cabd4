//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droc/internal/model"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()
	ctx := t.Context()
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Migrate(ctx))
	// second run is a no-op
	require.NoError(t, p.Migrate(ctx))

	tenant := "it_" + newPlanID()
	saved, err := p.SavePlan(ctx, model.PlanResult{
		TenantID:       tenant,
		PlanDate:       "2025-01-02",
		Clusters:       [][]string{{"1,1"}},
		ClusterIDs:     [][]int{{0}},
		TSPRoutes:      []model.TSPRoute{{Order: []int{0, 1, 0}, DistanceM: 10}},
		TotalDistanceM: 10,
	})
	require.NoError(t, err)

	got, err := p.GetPlan(ctx, tenant, saved.PlanID)
	require.NoError(t, err)
	assert.Equal(t, saved.Clusters, got.Clusters)

	list, next, err := p.ListPlans(ctx, tenant, "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, next)

	m := model.MetricsFor(saved)
	m.Mode = "loose"
	require.NoError(t, p.SavePlanMetrics(ctx, m))
	mx, err := p.ListPlanMetrics(ctx, tenant, "2025-01-02")
	require.NoError(t, err)
	assert.Len(t, mx, 1)

	id1, err := p.EnqueueWebhook(ctx, tenant, "plan.completed", "http://example.invalid", "", []byte(`{"id":"`+saved.PlanID+`"}`))
	require.NoError(t, err)
	id2, err := p.EnqueueWebhook(ctx, tenant, "plan.completed", "http://example.invalid", "", []byte(`{"id":"`+saved.PlanID+`"}`))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	require.NoError(t, p.FailWebhookDelivery(ctx, id1, "boom", 500, 3))
	ds, err := p.ListWebhookDeliveries(ctx, tenant, DeliveryFailed, 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "boom", ds[0].LastError)
}
