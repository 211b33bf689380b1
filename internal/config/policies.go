package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// LimiterConfig é a forma de um limiter no arquivo de políticas.
type LimiterConfig struct {
	CapacityPoints int64 `yaml:"capacity_points"`
	WindowSeconds  int64 `yaml:"window_seconds"`
	// BlockSeconds 0 significa "igual à janela".
	BlockSeconds  int64 `yaml:"block_seconds,omitempty"`
	ShortBlock    bool  `yaml:"short_block,omitempty"`
	SkipOnSuccess bool  `yaml:"skip_on_success,omitempty"`
}

func (l LimiterConfig) Profile() domain.Profile {
	return domain.Profile{
		Capacity:   l.CapacityPoints,
		Window:     time.Duration(l.WindowSeconds) * time.Second,
		Block:      time.Duration(l.BlockSeconds) * time.Second,
		ShortBlock: l.ShortBlock,
	}
}

type ProgressiveConfig struct {
	Short LimiterConfig `yaml:"short"`
	Long  LimiterConfig `yaml:"long"`
}

// Policies é a tabela fixa de políticas carregada na inicialização.
//
// Exemplo de arquivo:
//
//	limiters:
//	  api:  {capacity_points: 100, window_seconds: 60}
//	  auth: {capacity_points: 5, window_seconds: 900, skip_on_success: true}
//	tiers:
//	  free: {capacity_points: 100, window_seconds: 60}
//	  pro:  {capacity_points: 2000, window_seconds: 60}
//	progressive:
//	  short: {capacity_points: 100, window_seconds: 60}
//	  long:  {capacity_points: 1000, window_seconds: 3600}
type Policies struct {
	Limiters    map[string]LimiterConfig `yaml:"limiters"`
	Tiers       map[string]LimiterConfig `yaml:"tiers"`
	Progressive ProgressiveConfig        `yaml:"progressive"`
}

func DefaultPolicies() Policies {
	return Policies{
		Limiters: map[string]LimiterConfig{
			"api":  {CapacityPoints: 100, WindowSeconds: 60},
			"auth": {CapacityPoints: 5, WindowSeconds: 900, SkipOnSuccess: true},
			"bulk": {CapacityPoints: 1000, WindowSeconds: 3600},
		},
		Tiers: map[string]LimiterConfig{
			"free":       {CapacityPoints: 100, WindowSeconds: 60},
			"basic":      {CapacityPoints: 500, WindowSeconds: 60},
			"pro":        {CapacityPoints: 2000, WindowSeconds: 60},
			"enterprise": {CapacityPoints: 10000, WindowSeconds: 60},
		},
		Progressive: ProgressiveConfig{
			Short: LimiterConfig{CapacityPoints: 100, WindowSeconds: 60},
			Long:  LimiterConfig{CapacityPoints: 1000, WindowSeconds: 3600},
		},
	}
}

// LoadPolicies lê o YAML, completa com os padrões e valida.
// Seções ausentes no arquivo herdam DefaultPolicies.
func LoadPolicies(path string) (Policies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policies{}, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	var p Policies
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policies{}, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}

	applyDefaults(&p)

	if err := p.Validate(); err != nil {
		return Policies{}, fmt.Errorf("policy file %q: %w", path, err)
	}
	return p, nil
}

func applyDefaults(p *Policies) {
	def := DefaultPolicies()
	if len(p.Limiters) == 0 {
		p.Limiters = def.Limiters
	}
	if len(p.Tiers) == 0 {
		p.Tiers = def.Tiers
	}
	if p.Progressive.Short == (LimiterConfig{}) {
		p.Progressive.Short = def.Progressive.Short
	}
	if p.Progressive.Long == (LimiterConfig{}) {
		p.Progressive.Long = def.Progressive.Long
	}
}

// Validate reporta o primeiro profile inválido como *domain.ConfigError.
func (p Policies) Validate() error {
	for _, name := range sortedKeys(p.Limiters) {
		if err := validateProfile(name, p.Limiters[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(p.Tiers) {
		if application.ParseTier(name).String() != name {
			return &domain.ConfigError{Limiter: "tier_" + name, Field: "tier", Reason: "is not a known tier"}
		}
		if err := validateProfile("tier_"+name, p.Tiers[name]); err != nil {
			return err
		}
	}
	if _, ok := p.Tiers["free"]; !ok {
		return &domain.ConfigError{Limiter: "tier_free", Field: "profile", Reason: "is required"}
	}
	if err := validateProfile("progressive_short", p.Progressive.Short); err != nil {
		return err
	}
	return validateProfile("progressive_long", p.Progressive.Long)
}

func validateProfile(name string, l LimiterConfig) error {
	if err := l.Profile().Validate(); err != nil {
		if ce, ok := err.(*domain.ConfigError); ok {
			ce.Limiter = name
		}
		return err
	}
	return nil
}

// TierProfiles converte a seção tiers na tabela usada por application.Tiered.
func (p Policies) TierProfiles() application.TierProfiles {
	out := make(application.TierProfiles, len(p.Tiers))
	for name, l := range p.Tiers {
		out[application.ParseTier(name)] = l.Profile()
	}
	return out
}

func sortedKeys(m map[string]LimiterConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
