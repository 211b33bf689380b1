package infra

import (
	"context"
	"sync"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

// Local é um Backend em memória do processo: janela fixa com bloqueio por chave.
//
// Cada limiter tem seu próprio namespace com mutex próprio, então limiters
// diferentes não disputam o mesmo lock. O estado não é visto por outros processos.
// A expiração é preguiçosa; Sweep libera memória de chaves inativas.
type Local struct {
	mu     sync.Mutex
	spaces map[string]*namespace
	clock  domain.Clock
}

type namespace struct {
	mu      sync.Mutex
	entries map[domain.Key]*domain.Record
}

type LocalOption func(*Local)

// WithLocalClock troca o relógio usado pelo Sweep.
func WithLocalClock(c domain.Clock) LocalOption {
	return func(l *Local) { l.clock = c }
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		spaces: make(map[string]*namespace),
		clock:  domain.SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ domain.Backend = (*Local)(nil)

func (l *Local) space(limiter string) *namespace {
	l.mu.Lock()
	defer l.mu.Unlock()

	ns, ok := l.spaces[limiter]
	if !ok {
		ns = &namespace{entries: make(map[domain.Key]*domain.Record)}
		l.spaces[limiter] = ns
	}
	return ns
}

func (l *Local) Consume(_ context.Context, limiter string, key domain.Key, cost int64, p domain.Profile, now time.Time) (domain.Consumption, error) {
	p = p.Normalize()
	ns := l.space(limiter)

	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec, ok := ns.entries[key]
	if !ok {
		rec = &domain.Record{}
		ns.entries[key] = rec
	}

	if rec.Blocked(now) {
		return domain.Consumption{Allowed: false, Record: *rec}, nil
	}
	if rec.Expired(now) {
		rec.Consumed = 0
		rec.WindowExpiresAt = now.Add(p.Window)
	}
	rec.BlockedUntil = time.Time{}

	if rec.Consumed+cost > p.Capacity {
		rec.BlockedUntil = now.Add(p.Block)
		return domain.Consumption{Allowed: false, Record: *rec}, nil
	}
	rec.Consumed += cost
	return domain.Consumption{Allowed: true, Record: *rec}, nil
}

func (l *Local) Peek(_ context.Context, limiter string, key domain.Key) (domain.Record, bool, error) {
	ns := l.space(limiter)

	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec, ok := ns.entries[key]
	if !ok {
		return domain.Record{}, false, nil
	}
	return *rec, true, nil
}

func (l *Local) Reset(_ context.Context, limiter string, key domain.Key) error {
	ns := l.space(limiter)

	ns.mu.Lock()
	defer ns.mu.Unlock()

	delete(ns.entries, key)
	return nil
}

// Sweep remove registros cuja janela e bloqueio já passaram.
// Retorna quantos foram removidos.
func (l *Local) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	spaces := make([]*namespace, 0, len(l.spaces))
	for _, ns := range l.spaces {
		spaces = append(spaces, ns)
	}
	l.mu.Unlock()

	removed := 0
	for _, ns := range spaces {
		ns.mu.Lock()
		for k, rec := range ns.entries {
			if rec.Expired(now) && !rec.Blocked(now) {
				delete(ns.entries, k)
				removed++
			}
		}
		ns.mu.Unlock()
	}
	return removed
}

// Len devolve o total de chaves guardadas (todos os limiters).
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ns := range l.spaces {
		ns.mu.Lock()
		n += len(ns.entries)
		ns.mu.Unlock()
	}
	return n
}
