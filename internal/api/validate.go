package api

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"droc/internal/model"
)

const (
	maxWaypoints    = 5000
	maxTimeBudgetMs = 60_000
)

func validatePlanRequest(req *model.PlanRequest) error {
	if len(req.Waypoints) > maxWaypoints {
		return fmt.Errorf("at most %d waypoints per plan, got %d", maxWaypoints, len(req.Waypoints))
	}
	if req.TimeBudgetMs < 0 || req.TimeBudgetMs > maxTimeBudgetMs {
		return fmt.Errorf("timeBudgetMs must be in [0,%d]", maxTimeBudgetMs)
	}
	if req.MaxIterations < 0 {
		return errors.New("maxIterations must be >= 0")
	}
	if req.PlanDate != "" {
		if _, err := time.Parse(time.DateOnly, req.PlanDate); err != nil {
			return fmt.Errorf("planDate must be YYYY-MM-DD: %w", err)
		}
	}
	if req.CallbackSecret != "" && req.CallbackURL == "" {
		return errors.New("callbackSecret requires callbackUrl")
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callbackUrl must be an absolute http(s) URL")
		}
	}
	return nil
}

func validateOptimizerConfig(c *model.OptimizerConfig) error {
	if c.TimeBudgetMs < 0 || c.TimeBudgetMs > maxTimeBudgetMs {
		return fmt.Errorf("timeBudgetMs must be in [0,%d]", maxTimeBudgetMs)
	}
	if c.EnforceMaxLoops < 0 || c.MaxIterations < 0 || c.RefineMaxIterations < 0 {
		return errors.New("iteration ceilings must be >= 0")
	}
	if c.MinImprovement < 0 {
		return errors.New("minImprovement must be >= 0")
	}
	return nil
}
