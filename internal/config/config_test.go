package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("unexpected port: %d", cfg.HTTPPort)
	}
	if cfg.Solver.Engine != "greedy" {
		t.Fatalf("unexpected default engine: %q", cfg.Solver.Engine)
	}
	if cfg.Estimator.BaselineMinutesPerKm <= 0 {
		t.Fatal("expected a positive baseline")
	}
}

func TestLoadSolverFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	if err := os.WriteFile(path, []byte("engine: constructive\ntimeLimitSeconds: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLEPLAN_SOLVER_CONFIG_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Solver.Engine != "constructive" {
		t.Fatalf("engine not overlaid: %q", cfg.Solver.Engine)
	}
	if cfg.Solver.TimeLimitSeconds != 5 {
		t.Fatalf("time limit not overlaid: %v", cfg.Solver.TimeLimitSeconds)
	}
	// untouched keys keep defaults
	if cfg.Solver.MaxDailyCandidates != 120 {
		t.Fatalf("default candidate cap lost: %d", cfg.Solver.MaxDailyCandidates)
	}
}

func TestLoadProductionRejectsDevAuth(t *testing.T) {
	t.Setenv("POLEPLAN_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for AUTH_MODE=dev in production")
	}
	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("hmac with key should load: %v", err)
	}
}
