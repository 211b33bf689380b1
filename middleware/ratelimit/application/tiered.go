package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"quota-gateway/middleware/ratelimit/domain"
)

// Tier é o plano de assinatura do chamador. A tabela é fechada: texto vindo de
// fora nunca cria limiters novos.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPro
	TierEnterprise
)

var tierNames = [...]string{"free", "basic", "pro", "enterprise"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return tierNames[TierFree]
	}
	return tierNames[t]
}

// LimiterName é o nome registrado do limiter do plano, ex: "tier_pro".
func (t Tier) LimiterName() string { return "tier_" + t.String() }

// ParseTier aceita o nome do plano sem diferenciar maiúsculas.
// Valor desconhecido vira TierFree.
func ParseTier(s string) Tier {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if s == name {
			return Tier(i)
		}
	}
	return TierFree
}

// Tiers devolve todos os planos conhecidos.
func Tiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPro, TierEnterprise}
}

type TierProfiles map[Tier]domain.Profile

// Tiered escolhe o limiter pelo plano. Cada plano tem seu próprio limiter, então
// a mesma chave em planos diferentes nunca compartilha contador.
type Tiered struct {
	engines map[Tier]*Engine
	logger  *slog.Logger
}

// NewTiered registra um limiter por plano. O plano free é obrigatório porque é o
// destino de planos ausentes na tabela.
func NewTiered(reg *Registry, profiles TierProfiles) (*Tiered, error) {
	if _, ok := profiles[TierFree]; !ok {
		return nil, &domain.ConfigError{Limiter: TierFree.LimiterName(), Field: "profile", Reason: "is required"}
	}

	t := &Tiered{engines: make(map[Tier]*Engine, len(profiles)), logger: reg.Logger()}
	for tier, p := range profiles {
		if tier < TierFree || tier > TierEnterprise {
			return nil, fmt.Errorf("unknown tier %d", int(tier))
		}
		e, err := reg.GetOrCreate(tier.LimiterName(), p)
		if err != nil {
			return nil, err
		}
		t.engines[tier] = e
	}
	return t, nil
}

func (t *Tiered) Name() string { return "tiered" }

func (t *Tiered) engine(tier Tier) *Engine {
	if e, ok := t.engines[tier]; ok {
		return e
	}
	return t.engines[TierFree]
}

func (t *Tiered) Decide(ctx context.Context, req Request) domain.Decision {
	dec := t.engine(req.Tier).Consume(ctx, req.Key, 1)
	report(ctx, t.logger, req.Key, dec)
	return dec
}
