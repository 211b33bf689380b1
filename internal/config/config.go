// Package config centraliza o carregamento de configurações do gateway.
//
// Ordem: .env (se existir) -> variáveis de ambiente -> arquivo YAML de políticas.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	UpstreamURL string
	LogLevel    string

	Backend string // "local" ou "redis"
	Redis   RedisConfig

	Policy     string // "simple", "tiered", "progressive" ou "bulk"
	PolicyFile string
	Policies   Policies

	KeyHeader  string
	TierHeader string
	SizeHeader string
	LoginPath  string
	TrustXFF   bool
	AddHeaders bool

	SweepSchedule string

	AdminPrefix      string
	AdminRPS         float64
	AdminBurst       int
	AdminMaxParallel int

	Stats StatsConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

type StatsConfig struct {
	Enabled   bool
	Prefix    string
	TTL       time.Duration
	Bucket    string
	TrackKeys bool
}

var validPolicies = map[string]bool{"simple": true, "tiered": true, "progressive": true, "bulk": true}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.UpstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.Backend = strings.ToLower(getenvDefault("RATE_BACKEND", "local"))
	cfg.Redis = RedisConfig{
		Addr:     getenvDefault("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getenvIntDefault("REDIS_DB", 0),
		Prefix:   getenvDefault("REDIS_PREFIX", "ratelimit"),
		Timeout:  getenvDurationDefault("REDIS_TIMEOUT", 100*time.Millisecond),
	}

	cfg.Policy = strings.ToLower(getenvDefault("RATE_POLICY", "simple"))
	cfg.PolicyFile = os.Getenv("RATE_POLICY_FILE")

	cfg.KeyHeader = getenvDefault("RATE_KEY_HEADER", "X-User-Id")
	cfg.TierHeader = getenvDefault("RATE_TIER_HEADER", "X-Subscription-Tier")
	cfg.SizeHeader = getenvDefault("RATE_SIZE_HEADER", "X-Bulk-Items")
	cfg.LoginPath = getenvDefault("LOGIN_PATH", "/login")
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)

	cfg.SweepSchedule = getenvDefault("SWEEP_SCHEDULE", "@every 2m")

	cfg.AdminPrefix = getenvDefault("ADMIN_PREFIX", "/admin/ratelimit")
	cfg.AdminRPS = getenvFloatDefault("ADMIN_RPS", 5)
	cfg.AdminBurst = getenvIntDefault("ADMIN_BURST", 10)
	cfg.AdminMaxParallel = getenvIntDefault("ADMIN_MAX_PARALLEL", 4)

	cfg.Stats = StatsConfig{
		Enabled:   getenvBoolDefault("RATE_STATS_ENABLED", false),
		Prefix:    getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats"),
		TTL:       getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour),
		Bucket:    getenvDefault("RATE_STATS_BUCKET", "minute"),
		TrackKeys: getenvBoolDefault("RATE_STATS_TRACK_KEYS", false),
	}

	if cfg.PolicyFile != "" {
		p, err := LoadPolicies(cfg.PolicyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Policies = p
	} else {
		cfg.Policies = DefaultPolicies()
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	switch cfg.Backend {
	case "local":
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("REDIS_ADDR is required when RATE_BACKEND=redis")
		}
		if cfg.Redis.Timeout <= 0 {
			return errors.New("REDIS_TIMEOUT must be > 0")
		}
	default:
		return fmt.Errorf("unsupported RATE_BACKEND %q", cfg.Backend)
	}
	if !validPolicies[cfg.Policy] {
		return fmt.Errorf("unsupported RATE_POLICY %q", cfg.Policy)
	}
	if cfg.AdminRPS <= 0 {
		return errors.New("ADMIN_RPS must be > 0")
	}
	if cfg.AdminBurst <= 0 {
		return errors.New("ADMIN_BURST must be > 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
