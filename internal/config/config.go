package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"poleplan/internal/model"
	"poleplan/internal/traveltime"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPPort    int
	DatabaseURL string
	DBMigrate   bool
	RedisURL    string

	AuthMode      string // dev | hmac | jwks
	JWTSigningKey string
	JWKSURL       string

	PlanRateLimit float64 // plan requests per second per tenant
	PlanRateBurst int

	ShutdownGrace time.Duration

	// Solver defaults applied when a tenant has no stored config.
	// Overridable from a YAML file via POLEPLAN_SOLVER_CONFIG_FILE.
	Solver model.SolverConfig

	Estimator traveltime.Config
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("POLEPLAN_ENV", "development"),
		HTTPPort:    getEnvInt("PORT", 8080),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMigrate:   getEnvBool("DB_MIGRATE", true),
		RedisURL:    getEnv("REDIS_URL", ""),

		AuthMode:      getEnv("AUTH_MODE", "dev"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", ""),
		JWKSURL:       getEnv("JWKS_URL", ""),

		PlanRateLimit: getEnvFloat("POLEPLAN_PLAN_RATE_LIMIT", 1.0),
		PlanRateBurst: getEnvInt("POLEPLAN_PLAN_RATE_BURST", 2),

		ShutdownGrace: time.Duration(getEnvInt("POLEPLAN_SHUTDOWN_GRACE_SECONDS", 10)) * time.Second,

		Solver:    model.DefaultSolverConfig(),
		Estimator: traveltime.DefaultConfig(),
	}

	if path := os.Getenv("POLEPLAN_SOLVER_CONFIG_FILE"); path != "" {
		if err := loadSolverFile(path, &cfg.Solver); err != nil {
			return nil, fmt.Errorf("solver config file: %w", err)
		}
	}
	if v := os.Getenv("POLEPLAN_BASELINE_MINUTES_PER_KM"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("POLEPLAN_BASELINE_MINUTES_PER_KM: invalid value %q", v)
		}
		cfg.Estimator.BaselineMinutesPerKm = f
	}
	cfg.Estimator.RequireApproval = getEnvBool("POLEPLAN_MODEL_REQUIRE_APPROVAL", cfg.Estimator.RequireApproval)

	if cfg.Environment == "production" {
		switch cfg.AuthMode {
		case "hmac":
			if cfg.JWTSigningKey == "" {
				return nil, fmt.Errorf("JWT_SIGNING_KEY is required when AUTH_MODE=hmac in production")
			}
		case "jwks":
			if cfg.JWKSURL == "" {
				return nil, fmt.Errorf("JWKS_URL is required when AUTH_MODE=jwks in production")
			}
		case "dev":
			return nil, fmt.Errorf("AUTH_MODE=dev is not allowed in production")
		default:
			return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
		}
	}
	return cfg, nil
}

// loadSolverFile overlays YAML values onto dst; absent keys keep defaults.
func loadSolverFile(path string, dst *model.SolverConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, dst)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}
