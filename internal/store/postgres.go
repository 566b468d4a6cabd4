package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"droc/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations that have not run yet, in name
// order, each in its own transaction.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.migrateFS(ctx, migrations, "migrations")
}

func (p *Postgres) migrateFS(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return err
	}
	names, err := migrationNames(fsys, dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		var done bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return err
		}
		if err := p.applyMigration(ctx, name, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) applyMigration(ctx context.Context, name, body string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func migrationNames(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Plans

func (p *Postgres) SavePlan(ctx context.Context, res model.PlanResult) (model.PlanResult, error) {
	if res.PlanID == "" {
		res.PlanID = newPlanID()
	}
	if _, err := uuid.Parse(res.PlanID); err != nil {
		return model.PlanResult{}, fmt.Errorf("plan id %q: %w", res.PlanID, err)
	}
	created := time.Now().UTC()
	if res.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, res.CreatedAt)
		if err != nil {
			return model.PlanResult{}, fmt.Errorf("createdAt: %w", err)
		}
		created = t
	}
	res.CreatedAt = created.Format(time.RFC3339)
	js, err := json.Marshal(res)
	if err != nil {
		return model.PlanResult{}, err
	}
	sum := res.Summary()
	_, err = p.db.ExecContext(ctx, `INSERT INTO plans (id, tenant_id, plan_date, created_at, clusters, waypoints, total_distance_m, result)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET plan_date=$3, clusters=$5, waypoints=$6, total_distance_m=$7, result=$8`,
		res.PlanID, res.TenantID, res.PlanDate, created, sum.Clusters, sum.Waypoints, res.TotalDistanceM, string(js))
	if err != nil {
		return model.PlanResult{}, err
	}
	return res, nil
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, planID string) (model.PlanResult, error) {
	if _, err := uuid.Parse(planID); err != nil {
		return model.PlanResult{}, ErrNotFound
	}
	var js []byte
	err := p.db.QueryRowContext(ctx, `SELECT result FROM plans WHERE tenant_id=$1 AND id=$2`, tenantID, planID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanResult{}, ErrNotFound
	}
	if err != nil {
		return model.PlanResult{}, err
	}
	var res model.PlanResult
	if err := json.Unmarshal(js, &res); err != nil {
		return model.PlanResult{}, err
	}
	return res, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanSummary, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id::text, tenant_id, plan_date, created_at, clusters, waypoints, total_distance_m FROM plans WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if cursor != "" {
		c, perr := parseCursor(cursor)
		if perr != nil {
			return nil, "", perr
		}
		rows, err = p.db.QueryContext(ctx, q+` AND id > $2::uuid ORDER BY id LIMIT $3`, tenantID, c, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.PlanSummary{}
	var last string
	for rows.Next() {
		var s model.PlanSummary
		var created time.Time
		if err := rows.Scan(&s.PlanID, &s.TenantID, &s.PlanDate, &created, &s.Clusters, &s.Waypoints, &s.TotalDistanceM); err != nil {
			return nil, "", err
		}
		s.CreatedAt = created.UTC().Format(time.RFC3339)
		out = append(out, s)
		last = s.PlanID
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

// Metrics

func (p *Postgres) SavePlanMetrics(ctx context.Context, m model.PlanMetrics) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO plan_metrics (plan_id, tenant_id, plan_date, mode, k, enforce_moves, optimize_moves, refine_moves, oracle_calls, oracle_fallbacks, size_violations, initial_cost_m, final_cost_m, elapsed_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (plan_id) DO UPDATE SET
          mode=$4, k=$5, enforce_moves=$6, optimize_moves=$7, refine_moves=$8, oracle_calls=$9, oracle_fallbacks=$10, size_violations=$11, initial_cost_m=$12, final_cost_m=$13, elapsed_ms=$14, created_at=now()`,
		m.PlanID, m.TenantID, m.PlanDate, m.Mode, m.K, m.EnforceMoves, m.OptimizeMoves, m.RefineMoves,
		m.OracleCalls, m.OracleFallbacks, m.SizeViolations, m.InitialCostM, m.FinalCostM, m.ElapsedMs,
	)
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]model.PlanMetrics, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT plan_id::text, tenant_id, plan_date, mode, k, enforce_moves, optimize_moves, refine_moves, oracle_calls, oracle_fallbacks, size_violations, initial_cost_m, final_cost_m, elapsed_ms
        FROM plan_metrics WHERE tenant_id=$1 AND plan_date=$2 ORDER BY plan_id`, tenantID, planDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PlanMetrics{}
	for rows.Next() {
		var m model.PlanMetrics
		if err := rows.Scan(&m.PlanID, &m.TenantID, &m.PlanDate, &m.Mode, &m.K, &m.EnforceMoves, &m.OptimizeMoves, &m.RefineMoves,
			&m.OracleCalls, &m.OracleFallbacks, &m.SizeViolations, &m.InitialCostM, &m.FinalCostM, &m.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Optimizer config

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
	var js []byte
	err := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.OptimizerConfig
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, string(js))
	return err
}

// Webhook deliveries

// EnqueueWebhook inserts a pending delivery. A duplicate of an earlier event
// returns the existing delivery id.
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO UPDATE SET updated_at=webhook_deliveries.updated_at
        RETURNING id::text`, mustV7(), tenantID, eventType, url, nullIfEmpty(secret), payload, computeDedupKey(payload)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', last_error=NULL, delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status string, limit int) ([]WebhookDelivery, error) {
	limit = clampLimit(limit)
	q := `SELECT id::text, tenant_id, event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0) FROM webhook_deliveries WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, q+` AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
