package application

import (
	"context"
	"log/slog"

	"quota-gateway/middleware/ratelimit/domain"
)

// Request é a entrada de uma política: chave já resolvida, tamanho da operação
// (só usado por Bulk) e plano do chamador (só usado por Tiered).
type Request struct {
	Key  domain.Key
	Size int
	Tier Tier
}

// Policy transforma uma Request numa Decision.
//
// Bloqueios são logados em warn e falhas de storage em error (fail-open: a Decision
// volta com OutcomeStorageError e Proceed() == true).
type Policy interface {
	Name() string
	Decide(ctx context.Context, req Request) domain.Decision
}

func report(ctx context.Context, logger *slog.Logger, key domain.Key, dec domain.Decision) {
	switch dec.Outcome {
	case domain.OutcomeBlocked:
		attrs := append([]slog.Attr{
			slog.String("limiter", dec.Limiter),
			slog.String("key", string(key)),
			slog.Int64("retry_after_ms", dec.RetryAfter.Milliseconds()),
		}, LogAttrs(ctx)...)
		if dec.BlockType != "" {
			attrs = append(attrs, slog.String("block_type", string(dec.BlockType)))
		}
		logger.LogAttrs(ctx, slog.LevelWarn, "rate limit exceeded", attrs...)
	case domain.OutcomeStorageError:
		attrs := append([]slog.Attr{
			slog.String("limiter", dec.Limiter),
			slog.String("key", string(key)),
			slog.Any("error", dec.Err),
		}, LogAttrs(ctx)...)
		logger.LogAttrs(ctx, slog.LevelError, "rate limit storage unavailable, failing open", attrs...)
	}
}

// Simple consome 1 ponto de um único limiter por chamada.
type Simple struct {
	engine *Engine
	logger *slog.Logger
}

func NewSimple(reg *Registry, name string, p domain.Profile) (*Simple, error) {
	e, err := reg.GetOrCreate(name, p)
	if err != nil {
		return nil, err
	}
	return &Simple{engine: e, logger: reg.Logger()}, nil
}

func (s *Simple) Name() string { return s.engine.Name() }

func (s *Simple) Decide(ctx context.Context, req Request) domain.Decision {
	dec := s.engine.Consume(ctx, req.Key, 1)
	report(ctx, s.logger, req.Key, dec)
	return dec
}

// BulkCost é o custo de uma operação em lote: max(1, floor(size/100)).
func BulkCost(size int) int64 {
	return max(int64(size/100), 1)
}

// Bulk cobra BulkCost(req.Size) pontos de uma vez.
type Bulk struct {
	engine *Engine
	logger *slog.Logger
}

func NewBulk(reg *Registry, name string, p domain.Profile) (*Bulk, error) {
	e, err := reg.GetOrCreate(name, p)
	if err != nil {
		return nil, err
	}
	return &Bulk{engine: e, logger: reg.Logger()}, nil
}

func (b *Bulk) Name() string { return b.engine.Name() }

func (b *Bulk) Decide(ctx context.Context, req Request) domain.Decision {
	dec := b.engine.Consume(ctx, req.Key, BulkCost(req.Size))
	report(ctx, b.logger, req.Key, dec)
	return dec
}

// SkipOnSuccess só consome quando a operação protegida falha (ex: tentativas de login).
//
// Decide é a checagem prévia e não consome nada; RecordFailure consome depois que
// o resultado é conhecido.
type SkipOnSuccess struct {
	engine *Engine
	logger *slog.Logger
}

func NewSkipOnSuccess(reg *Registry, name string, p domain.Profile) (*SkipOnSuccess, error) {
	e, err := reg.GetOrCreate(name, p)
	if err != nil {
		return nil, err
	}
	return &SkipOnSuccess{engine: e, logger: reg.Logger()}, nil
}

func (s *SkipOnSuccess) Name() string { return s.engine.Name() }

func (s *SkipOnSuccess) Decide(ctx context.Context, req Request) domain.Decision {
	dec := s.engine.Check(ctx, req.Key)
	report(ctx, s.logger, req.Key, dec)
	return dec
}

func (s *SkipOnSuccess) RecordFailure(ctx context.Context, req Request) domain.Decision {
	dec := s.engine.Consume(ctx, req.Key, 1)
	if dec.Outcome == domain.OutcomeStorageError {
		report(ctx, s.logger, req.Key, dec)
	}
	return dec
}

// Do roda op se a checagem prévia permitir e conta a tentativa se op falhar.
// Quando bloqueado, op não roda e o erro é nil; consulte a Decision.
func (s *SkipOnSuccess) Do(ctx context.Context, req Request, op func(context.Context) error) (domain.Decision, error) {
	dec := s.Decide(ctx, req)
	if !dec.Proceed() {
		return dec, nil
	}
	if err := op(ctx); err != nil {
		s.RecordFailure(ctx, req)
		return dec, err
	}
	return dec, nil
}
