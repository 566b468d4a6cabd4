// Package config loads service settings: built-in defaults, then an optional
// YAML file, then environment variables. A .env file is read first when one
// exists, so local runs can keep their variables next to the binary.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"droc/internal/partition"
	"droc/internal/tour"
)

// Config is the full service configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`
	// DBMigrate applies the embedded schema on startup when set.
	DBMigrate bool `yaml:"dbMigrate"`

	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`

	WebhookMaxAttempts int `yaml:"webhookMaxAttempts"`

	Auth    Auth    `yaml:"auth"`
	Log     Log     `yaml:"log"`
	Planner Planner `yaml:"planner"`
}

// Auth selects how bearer tokens are verified: "dev" accepts tenant:role
// tokens, "hmac" verifies HS256 JWTs with HMACSecret.
type Auth struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmacSecret"`
}

// Log selects the logger backend.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Planner holds the partitioner and tour oracle defaults. Requests may
// override the budget, iteration ceiling, strictness and refinement.
type Planner struct {
	TimeBudgetMs        int     `yaml:"timeBudgetMs"`
	EnforceMaxLoops     int     `yaml:"enforceMaxLoops"`
	MaxIterations       int     `yaml:"maxIterations"`
	MinImprovement      float64 `yaml:"minImprovement"`
	Strict              bool    `yaml:"strict"`
	Refine              bool    `yaml:"refine"`
	RefineMaxIterations int     `yaml:"refineMaxIterations"`
	Parallel            int     `yaml:"parallel"`

	ExactLimit    int   `yaml:"exactLimit"`
	Perturbations int   `yaml:"perturbations"`
	Seed          int64 `yaml:"seed"`
	CacheEntries  int   `yaml:"cacheEntries"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:               "8080",
		RateRPS:            5,
		RateBurst:          10,
		WebhookMaxAttempts: 5,
		Auth:               Auth{Mode: "dev"},
		Log:                Log{Level: "info", Format: "text"},
		Planner: Planner{
			TimeBudgetMs:        int(partition.DefaultBudget / time.Millisecond),
			EnforceMaxLoops:     partition.DefaultEnforceMaxLoops,
			MaxIterations:       partition.DefaultMaxIterations,
			MinImprovement:      partition.DefaultMinImprovement,
			RefineMaxIterations: partition.DefaultRefineMaxIterations,
			Parallel:            1,
			ExactLimit:          tour.DefaultExactLimit,
			Perturbations:       tour.DefaultPerturbations,
			CacheEntries:        4096,
		},
	}
}

// Load builds the configuration from the process environment.
func Load() (Config, error) {
	envFile := os.Getenv("DROC_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	cfg := Default()
	path, explicit := os.LookupEnv("DROC_CONFIG")
	if !explicit {
		path = "config.yaml"
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path. A missing default file is fine;
// a missing explicit one is not.
func (c *Config) loadFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	flag("DB_MIGRATE", &c.DBMigrate)
	float("RATE_RPS", &c.RateRPS)
	num("RATE_BURST", &c.RateBurst)
	num("WEBHOOK_MAX_ATTEMPTS", &c.WebhookMaxAttempts)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	p := &c.Planner
	num("DROC_TIME_BUDGET_MS", &p.TimeBudgetMs)
	num("DROC_ENFORCE_MAX_LOOPS", &p.EnforceMaxLoops)
	num("DROC_MAX_ITERATIONS", &p.MaxIterations)
	float("DROC_MIN_IMPROVEMENT", &p.MinImprovement)
	flag("DROC_STRICT", &p.Strict)
	flag("DROC_REFINE", &p.Refine)
	num("DROC_REFINE_MAX_ITERATIONS", &p.RefineMaxIterations)
	num("DROC_PARALLEL", &p.Parallel)
	num("DROC_EXACT_LIMIT", &p.ExactLimit)
	num("DROC_PERTURBATIONS", &p.Perturbations)
	num("DROC_CACHE_ENTRIES", &p.CacheEntries)
	if v, ok := lookup("DROC_SEED"); ok && v != "" {
		s, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DROC_SEED: %w", err))
		} else {
			p.Seed = s
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks ranges that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is empty"))
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limits must be >= 0"))
	}
	if c.WebhookMaxAttempts < 1 {
		errs = append(errs, errors.New("webhookMaxAttempts must be >= 1"))
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth.hmacSecret is required in hmac mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not dev or hmac", c.Auth.Mode))
	}
	p := c.Planner
	if p.TimeBudgetMs <= 0 {
		errs = append(errs, errors.New("planner.timeBudgetMs must be > 0"))
	}
	if p.EnforceMaxLoops <= 0 || p.MaxIterations <= 0 || p.RefineMaxIterations <= 0 {
		errs = append(errs, errors.New("planner iteration ceilings must be > 0"))
	}
	if p.MinImprovement < 0 {
		errs = append(errs, errors.New("planner.minImprovement must be >= 0"))
	}
	if p.Parallel < 1 {
		errs = append(errs, errors.New("planner.parallel must be >= 1"))
	}
	if p.ExactLimit < 0 || p.ExactLimit > tour.MaxExactNodes {
		errs = append(errs, fmt.Errorf("planner.exactLimit must be in [0,%d]", tour.MaxExactNodes))
	}
	if p.CacheEntries < 0 {
		errs = append(errs, errors.New("planner.cacheEntries must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Budget is the per-call oracle budget.
func (p Planner) Budget() time.Duration {
	return time.Duration(p.TimeBudgetMs) * time.Millisecond
}

// PartitionOptions maps the planner settings onto partition.Options.
func (p Planner) PartitionOptions() partition.Options {
	mode := partition.ModeLoose
	if p.Strict {
		mode = partition.ModeStrict
	}
	return partition.Options{
		Budget:              p.Budget(),
		EnforceMaxLoops:     p.EnforceMaxLoops,
		MaxIterations:       p.MaxIterations,
		MinImprovement:      p.MinImprovement,
		Mode:                mode,
		Refine:              p.Refine,
		RefineMaxIterations: p.RefineMaxIterations,
		Parallel:            p.Parallel,
	}
}

// Oracle builds the tour oracle, wrapped in a cache unless CacheEntries is 0.
func (p Planner) Oracle() tour.Oracle {
	s := &tour.Solver{ExactLimit: p.ExactLimit, Perturbations: p.Perturbations, Seed: p.Seed}
	if p.CacheEntries == 0 {
		return s
	}
	return tour.NewCache(s, p.CacheEntries)
}
