package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
	"quota-gateway/middleware/ratelimit/infra"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingBackend falha para os limiters listados (ou para todos se a lista for vazia)
// e delega o resto para um Local.
type failingBackend struct {
	*infra.Local
	only map[string]bool
}

var errBackendDown = errors.Join(domain.ErrStorageUnavailable, errors.New("connection refused"))

func newFailingBackend(limiters ...string) *failingBackend {
	b := &failingBackend{Local: infra.NewLocal(), only: make(map[string]bool)}
	for _, l := range limiters {
		b.only[l] = true
	}
	return b
}

func (b *failingBackend) fails(limiter string) bool {
	return len(b.only) == 0 || b.only[limiter]
}

func (b *failingBackend) Consume(ctx context.Context, limiter string, key domain.Key, cost int64, p domain.Profile, now time.Time) (domain.Consumption, error) {
	if b.fails(limiter) {
		return domain.Consumption{}, errBackendDown
	}
	return b.Local.Consume(ctx, limiter, key, cost, p, now)
}

func (b *failingBackend) Peek(ctx context.Context, limiter string, key domain.Key) (domain.Record, bool, error) {
	if b.fails(limiter) {
		return domain.Record{}, false, errBackendDown
	}
	return b.Local.Peek(ctx, limiter, key)
}

func (b *failingBackend) Reset(ctx context.Context, limiter string, key domain.Key) error {
	if b.fails(limiter) {
		return errBackendDown
	}
	return b.Local.Reset(ctx, limiter, key)
}

// logCapture guarda a saída JSON do slog para contar entradas por nível.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *logCapture) entries(t *testing.T, level string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if m["level"] == level {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	reg   *Registry
	clock *fakeClock
	logs  *logCapture
}

func newTestEnv(t *testing.T, backend domain.Backend) testEnv {
	t.Helper()
	if backend == nil {
		backend = infra.NewLocal()
	}
	env := testEnv{
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
		logs:  &logCapture{},
	}
	env.reg = NewRegistry(backend, WithClock(env.clock), WithLogger(env.logs.logger()))
	return env
}
