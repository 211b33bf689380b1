package application

import (
	"context"
	"log/slog"

	"quota-gateway/middleware/ratelimit/domain"
)

// Progressive combina uma janela curta (rajadas) e uma longa (abuso sustentado).
// As duas precisam permitir; a curta é avaliada primeiro e define o BlockType
// quando as duas bloqueiam.
//
// Toda requisição é cobrada nas duas janelas, inclusive a barrada pela curta:
// uma rajada repetida também conta para o limite sustentado.
type Progressive struct {
	name  string
	short *Engine
	long  *Engine

	logger *slog.Logger
}

// NewProgressive registra "<name>_short" e "<name>_long".
func NewProgressive(reg *Registry, name string, short, long domain.Profile) (*Progressive, error) {
	se, err := reg.GetOrCreate(name+"_short", short)
	if err != nil {
		return nil, err
	}
	le, err := reg.GetOrCreate(name+"_long", long)
	if err != nil {
		return nil, err
	}
	return &Progressive{name: name, short: se, long: le, logger: reg.Logger()}, nil
}

func (p *Progressive) Name() string { return p.name }

func (p *Progressive) Decide(ctx context.Context, req Request) domain.Decision {
	dec := p.decide(ctx, req.Key)
	report(ctx, p.logger, req.Key, dec)
	return dec
}

func (p *Progressive) decide(ctx context.Context, key domain.Key) domain.Decision {
	sd := p.short.Consume(ctx, key, 1)
	ld := p.long.Consume(ctx, key, 1)

	switch sd.Outcome {
	case domain.OutcomeBlocked:
		sd.BlockType = domain.BlockShortTerm
		return sd
	case domain.OutcomeStorageError:
		return sd
	}
	switch ld.Outcome {
	case domain.OutcomeBlocked:
		ld.BlockType = domain.BlockLongTerm
		return ld
	case domain.OutcomeStorageError:
		return ld
	}

	// reporta a janela mais restritiva
	if ld.Remaining < sd.Remaining {
		return ld
	}
	return sd
}
