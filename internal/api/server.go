// Package api implements the HTTP surface of the planning service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	"droc/internal/auth"
	"droc/internal/config"
	"droc/internal/logging"
	"droc/internal/partition"
	"droc/internal/store"
	"droc/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Planner *partition.Planner
	Log     logging.Logger
	Config  config.Config

	limiters *xsync.Map[string, *rate.Limiter]
	// plan topics still being computed on this replica
	running *xsync.Map[string, struct{}]
	// background plans started with ?async=true
	bg sync.WaitGroup
}

// NewServer wires a Server from cfg. An empty DatabaseURL selects the
// in-memory store; a RedisURL selects the Redis event broker.
func NewServer(ctx context.Context, cfg config.Config, log logging.Logger) (*Server, error) {
	log = logging.OrNop(log)
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("api: open postgres: %w", err)
		}
		if cfg.DBMigrate {
			if err := sp.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("api: migrate: %w", err)
			}
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("api: redis broker: %w", err)
		}
		broker = rb
	}
	planner := partition.NewPlanner(cfg.Planner.Oracle(), cfg.Planner.PartitionOptions(), log)
	return New(s, broker, planner, cfg, log), nil
}

// New assembles a Server from ready dependencies.
func New(s store.Store, broker EventBroker, planner *partition.Planner, cfg config.Config, log logging.Logger) *Server {
	log = logging.OrNop(log)
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s, log),
		Auth:     auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret),
		Broker:   broker,
		Planner:  planner,
		Log:      log,
		Config:   cfg,
		limiters: xsync.NewMap[string, *rate.Limiter](),
		running:  xsync.NewMap[string, struct{}](),
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts, s.Log)
}

// Wait blocks until background plans have finished.
func (s *Server) Wait() { s.bg.Wait() }

// Handler returns the routed handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Plans
	mux.Handle("POST /v1/plans", s.rateLimit(http.HandlerFunc(s.CreatePlanHandler)))
	mux.HandleFunc("GET /v1/plans", s.ListPlansHandler)
	mux.Handle("GET /v1/plans/ws", s.rateLimit(http.HandlerFunc(s.PlanWSHandler)))
	mux.HandleFunc("GET /v1/plans/{id}", s.GetPlanHandler)
	mux.HandleFunc("GET /v1/plans/{id}/events/stream", s.PlanEventsHandler)

	// Optimizer config
	mux.HandleFunc("GET /v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("GET /v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)
	mux.HandleFunc("PUT /v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)

	// Admin
	mux.HandleFunc("GET /v1/admin/plan-metrics", s.PlanMetricsHandler)
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Health, metrics, docs
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", MetricsHandler())
	mux.Handle("GET /debug/vars", s.DebugVarsHandler())
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	return logMiddleware(s.Log, metricsMiddleware(mux))
}
