package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Backend != "local" || cfg.Policy != "simple" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Redis.Timeout != 100*time.Millisecond {
		t.Fatalf("expected 100ms redis timeout, got %v", cfg.Redis.Timeout)
	}
	if cfg.Policies.Limiters["api"].CapacityPoints != 100 {
		t.Fatalf("expected default policies, got %+v", cfg.Policies.Limiters)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("RATE_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_TIMEOUT", "250ms")
	t.Setenv("RATE_POLICY", "tiered")
	t.Setenv("TRUST_XFF", "true")
	t.Setenv("ADMIN_RPS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != "redis" || cfg.Redis.Addr != "redis:6379" || cfg.Redis.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Policy != "tiered" || !cfg.TrustXFF {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AdminRPS != 5 {
		t.Fatalf("invalid number should keep default, got %v", cfg.AdminRPS)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing upstream": {},
		"bad backend":      {"UPSTREAM_URL": "http://x", "RATE_BACKEND": "memcached"},
		"bad policy":       {"UPSTREAM_URL": "http://x", "RATE_POLICY": "leaky"},
		"zero admin burst": {"UPSTREAM_URL": "http://x", "ADMIN_BURST": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("UPSTREAM_URL", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestLoadPolicies_FileWithDefaults(t *testing.T) {
	path := writePolicyFile(t, `
limiters:
  api:
    capacity_points: 50
    window_seconds: 10
  login:
    capacity_points: 5
    window_seconds: 900
    block_seconds: 1800
    skip_on_success: true
tiers:
  free: {capacity_points: 10, window_seconds: 60}
  pro: {capacity_points: 200, window_seconds: 60}
`)

	p, err := LoadPolicies(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	login := p.Limiters["login"]
	if !login.SkipOnSuccess || login.Profile().Block != 30*time.Minute {
		t.Fatalf("unexpected login config: %+v", login)
	}
	if _, ok := p.Limiters["bulk"]; ok {
		t.Fatalf("limiters from the file replace the defaults")
	}
	if p.Progressive.Long.CapacityPoints != 1000 {
		t.Fatalf("expected progressive defaults, got %+v", p.Progressive)
	}

	tiers := p.TierProfiles()
	if tiers[application.TierPro].Capacity != 200 || tiers[application.TierFree].Window != time.Minute {
		t.Fatalf("unexpected tier profiles: %+v", tiers)
	}
}

func TestLoadPolicies_InvalidProfile(t *testing.T) {
	path := writePolicyFile(t, `
limiters:
  api: {capacity_points: 0, window_seconds: 10}
`)

	_, err := LoadPolicies(path)
	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Limiter != "api" || ce.Field != "capacity" {
		t.Fatalf("unexpected config error: %+v", ce)
	}
}

func TestLoadPolicies_RequiresFreeTier(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  pro: {capacity_points: 200, window_seconds: 60}
`)
	if _, err := LoadPolicies(path); !domain.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadPolicies_UnknownTier(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: {capacity_points: 10, window_seconds: 60}
  gold: {capacity_points: 10, window_seconds: 60}
`)
	if _, err := LoadPolicies(path); !domain.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadPolicies_MissingFile(t *testing.T) {
	if _, err := LoadPolicies(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
