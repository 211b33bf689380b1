package infra

import (
	"context"
	"sync"

	"quota-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed      int64
	Blocked      int64
	StorageError int64
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeAllowed:
		c.Allowed++
	case domain.OutcomeBlocked:
		c.Blocked++
	case domain.OutcomeStorageError:
		c.StorageError++
	}
}

// MemoryStatsStore conta decisões no próprio processo, sem expiração.
// Serve para o backend local e para testes; com várias instâncias use RedisStatsStore.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	byLimiter map[string]Counters
	byRoute   map[string]Counters
	byKey     map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byLimiter: make(map[string]Counters),
		byRoute:   make(map[string]Counters),
		byKey:     make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Route()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)

	c := s.byLimiter[ev.Limiter]
	c.add(ev.Outcome)
	s.byLimiter[ev.Limiter] = c

	if route != "" {
		r := s.byRoute[route]
		r.add(ev.Outcome)
		s.byRoute[route] = r
	}

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev.Outcome)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByLimiter() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byLimiter)
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byKey)
}

var _ domain.StatsReader = (*MemoryStatsStore)(nil)

func (s *MemoryStatsStore) Summary(context.Context) (domain.StatsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := domain.StatsSummary{
		Total:     s.total.byOutcome(),
		ByLimiter: make(map[string]map[string]int64, len(s.byLimiter)),
	}
	for name, c := range s.byLimiter {
		sum.ByLimiter[name] = c.byOutcome()
	}
	return sum, nil
}

func (c Counters) byOutcome() map[string]int64 {
	out := make(map[string]int64, 3)
	for o, n := range map[domain.Outcome]int64{
		domain.OutcomeAllowed:      c.Allowed,
		domain.OutcomeBlocked:      c.Blocked,
		domain.OutcomeStorageError: c.StorageError,
	} {
		if n > 0 {
			out[o.String()] = n
		}
	}
	return out
}

func copyCounters(in map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
