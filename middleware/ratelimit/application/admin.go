package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"quota-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
)

// ErrUnknownLimiter é devolvido (dentro de PartialFailureError) para nomes não registrados.
var ErrUnknownLimiter = errors.New("unknown limiter")

// PartialFailureError lista os limiters que falharam numa operação administrativa.
// Os demais foram processados normalmente.
type PartialFailureError struct {
	Op       string
	Failures map[string]error
}

func (e *PartialFailureError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("admin %s: %d limiter(s) failed: %s", e.Op, len(names), strings.Join(parts, "; "))
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// Admin expõe estatísticas e reset sobre todos os limiters do Registry.
// Não faz parte do caminho quente.
type Admin struct {
	reg    *Registry
	pool   domain.SlotPool
	logger *slog.Logger
}

type AdminOption func(*Admin)

// WithSlotPool limita quantos limiters são consultados em paralelo.
// Sem pool, todos rodam ao mesmo tempo.
func WithSlotPool(p domain.SlotPool) AdminOption {
	return func(a *Admin) { a.pool = p }
}

func NewAdmin(reg *Registry, opts ...AdminOption) *Admin {
	a := &Admin{reg: reg, logger: reg.Logger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stats devolve o status da chave em cada limiter registrado.
// Em falha parcial o mapa traz os que funcionaram e o erro é *PartialFailureError.
func (a *Admin) Stats(ctx context.Context, key domain.Key) (map[string]LimiterStatus, error) {
	var mu sync.Mutex
	out := make(map[string]LimiterStatus)

	err := a.fanOut(ctx, "stats", key, a.reg.Names(), func(ctx context.Context, e *Engine) error {
		st, err := e.Status(ctx, key)
		if err != nil {
			return err
		}
		mu.Lock()
		out[e.Name()] = st
		mu.Unlock()
		return nil
	})
	return out, err
}

// Reset limpa a chave nos limiters informados, ou em todos se nenhum for informado.
func (a *Admin) Reset(ctx context.Context, key domain.Key, names ...string) error {
	if len(names) == 0 {
		names = a.reg.Names()
	}
	return a.fanOut(ctx, "reset", key, names, func(ctx context.Context, e *Engine) error {
		return e.Reset(ctx, key)
	})
}

func (a *Admin) fanOut(ctx context.Context, op string, key domain.Key, names []string, fn func(context.Context, *Engine) error) error {
	opID := uuid.NewString()

	var (
		mu       sync.Mutex
		failures = make(map[string]error)
		wg       sync.WaitGroup
	)
	fail := func(name string, err error) {
		mu.Lock()
		failures[name] = err
		mu.Unlock()
	}

	for _, name := range names {
		e, ok := a.reg.Lookup(name)
		if !ok {
			fail(name, ErrUnknownLimiter)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.pool != nil {
				release, ok := a.pool.Acquire(ctx)
				if !ok {
					fail(name, ctx.Err())
					return
				}
				defer release()
			}
			if err := fn(ctx, e); err != nil {
				fail(name, err)
			}
		}()
	}
	wg.Wait()

	a.logger.LogAttrs(ctx, slog.LevelInfo, "rate limit admin operation",
		slog.String("op", op),
		slog.String("op_id", opID),
		slog.String("key", string(key)),
		slog.Int("limiters", len(names)),
		slog.Int("failed", len(failures)),
	)
	if len(failures) == 0 {
		return nil
	}

	for name, err := range failures {
		a.logger.LogAttrs(ctx, slog.LevelError, "rate limit admin operation failed for limiter",
			slog.String("op", op),
			slog.String("op_id", opID),
			slog.String("key", string(key)),
			slog.String("limiter", name),
			slog.Any("error", err),
		)
	}
	return &PartialFailureError{Op: op, Failures: failures}
}
