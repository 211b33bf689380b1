package application

import (
	"context"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

// Engine aplica um Profile (capacidade/janela/bloqueio) contra um Backend.
//
// Ele não loga nem decide fail-open: devolve uma Decision e deixa a política
// resolver o que fazer com ela.
type Engine struct {
	name    string
	profile domain.Profile
	backend domain.Backend
	clock   domain.Clock
	metrics domain.Metrics
}

func (e *Engine) Name() string            { return e.name }
func (e *Engine) Profile() domain.Profile { return e.profile }

// Consume tenta consumir `cost` pontos da chave. Custos menores que 1 contam como 1.
func (e *Engine) Consume(ctx context.Context, key domain.Key, cost int64) domain.Decision {
	if cost < 1 {
		cost = 1
	}
	start := time.Now()
	now := e.clock.Now()

	c, err := e.backend.Consume(ctx, e.name, key, cost, e.profile, now)
	dec := e.decide(c, err, now)

	e.metrics.ObserveDecision(e.name, dec.Outcome, time.Since(start))
	return dec
}

// Check avalia, sem consumir, se um consumo de custo 1 passaria agora.
func (e *Engine) Check(ctx context.Context, key domain.Key) domain.Decision {
	now := e.clock.Now()
	rec, _, err := e.backend.Peek(ctx, e.name, key)
	if err != nil {
		return e.decide(domain.Consumption{}, err, now)
	}

	if rec.Blocked(now) {
		return e.decide(domain.Consumption{Record: rec}, nil, now)
	}
	if rec.Remaining(e.profile.Capacity, now) < 1 {
		// esgotado mas ainda sem bloqueio marcado: libera quando a janela virar
		return domain.Decision{
			Outcome:    domain.OutcomeBlocked,
			Limiter:    e.name,
			Limit:      e.profile.Capacity,
			ResetAt:    rec.WindowExpiresAt,
			RetryAfter: rec.WindowExpiresAt.Sub(now),
		}
	}
	if !rec.WindowExpiresAt.After(now) {
		rec = domain.Record{WindowExpiresAt: now.Add(e.profile.Window)}
	}
	return e.decide(domain.Consumption{Allowed: true, Record: rec}, nil, now)
}

func (e *Engine) decide(c domain.Consumption, err error, now time.Time) domain.Decision {
	dec := domain.Decision{Limiter: e.name, Limit: e.profile.Capacity}

	switch {
	case err != nil:
		dec.Outcome = domain.OutcomeStorageError
		dec.Err = err
	case c.Allowed:
		dec.Outcome = domain.OutcomeAllowed
		dec.Remaining = max(e.profile.Capacity-c.Record.Consumed, 0)
		dec.ResetAt = c.Record.WindowExpiresAt
	default:
		dec.Outcome = domain.OutcomeBlocked
		dec.ResetAt = c.Record.BlockedUntil
		dec.RetryAfter = max(c.Record.BlockedUntil.Sub(now), 0)
	}
	return dec
}

func (e *Engine) Peek(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	return e.backend.Peek(ctx, e.name, key)
}

func (e *Engine) Reset(ctx context.Context, key domain.Key) error {
	return e.backend.Reset(ctx, e.name, key)
}

// LimiterStatus é a visão administrativa de uma chave num limiter.
type LimiterStatus struct {
	Limit     int64
	Remaining int64
	// ResetIn é o tempo até o próximo ponto ser liberado (fim do bloqueio ou da janela).
	ResetIn time.Duration
	Blocked bool
}

func (e *Engine) Status(ctx context.Context, key domain.Key) (LimiterStatus, error) {
	rec, ok, err := e.backend.Peek(ctx, e.name, key)
	if err != nil {
		return LimiterStatus{}, err
	}

	st := LimiterStatus{Limit: e.profile.Capacity, Remaining: e.profile.Capacity}
	if !ok {
		return st, nil
	}

	now := e.clock.Now()
	st.Remaining = rec.Remaining(e.profile.Capacity, now)
	switch {
	case rec.Blocked(now):
		st.Blocked = true
		st.ResetIn = rec.BlockedUntil.Sub(now)
	case rec.WindowExpiresAt.After(now):
		st.ResetIn = rec.WindowExpiresAt.Sub(now)
	}
	return st, nil
}
