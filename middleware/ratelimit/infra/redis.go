package infra

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quota-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

//go:embed consume.lua
var consumeSource string

var consumeScript = redis.NewScript(consumeSource)

// Redis é o Backend distribuído: contadores compartilhados por todas as instâncias
// que apontam para o mesmo Redis.
//
// O consumo roda num único script Lua (leitura, decisão, escrita e PEXPIRE), então
// duas instâncias disputando a mesma chave nunca enxergam um contador desatualizado.
// Toda chamada tem timeout curto; estouro de timeout vira ErrStorageUnavailable.
// O timeout vai no context, então o cliente precisa de ContextTimeoutEnabled:
// sem isso o go-redis só desiste no ReadTimeout dele (3s por padrão).
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		prefix = strings.Trim(prefix, ":")
		if prefix != "" {
			prefix += ":"
		}
		r.prefix = prefix
	}
}

func WithTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.timeout = d }
}

func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:     rdb,
		prefix:  "ratelimit:",
		timeout: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ domain.Backend = (*Redis)(nil)

func (r *Redis) recordKey(limiter string, key domain.Key) string {
	return r.prefix + limiter + ":" + string(key)
}

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Redis) Consume(ctx context.Context, limiter string, key domain.Key, cost int64, p domain.Profile, now time.Time) (domain.Consumption, error) {
	p = p.Normalize()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := consumeScript.Run(ctx, r.rdb, []string{r.recordKey(limiter, key)},
		now.UnixMilli(),
		cost,
		p.Capacity,
		p.Window.Milliseconds(),
		p.Block.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.Consumption{}, unavailable("consume", err)
	}
	if len(res) != 4 {
		return domain.Consumption{}, unavailable("consume", fmt.Errorf("unexpected script reply of %d values", len(res)))
	}

	return domain.Consumption{
		Allowed: res[0] == 1,
		Record: domain.Record{
			Consumed:        res[1],
			WindowExpiresAt: fromMillis(res[2]),
			BlockedUntil:    fromMillis(res[3]),
		},
	}, nil
}

func (r *Redis) Peek(ctx context.Context, limiter string, key domain.Key) (domain.Record, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	vals, err := r.rdb.HMGet(ctx, r.recordKey(limiter, key), "consumed", "expires", "blocked").Result()
	if err != nil {
		return domain.Record{}, false, unavailable("peek", err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return domain.Record{}, false, nil
	}

	var fields [3]int64
	for i, v := range vals {
		n, err := parseInt(v)
		if err != nil {
			return domain.Record{}, false, unavailable("peek", err)
		}
		fields[i] = n
	}

	return domain.Record{
		Consumed:        fields[0],
		WindowExpiresAt: fromMillis(fields[1]),
		BlockedUntil:    fromMillis(fields[2]),
	}, true, nil
}

func (r *Redis) Reset(ctx context.Context, limiter string, key domain.Key) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.rdb.Del(ctx, r.recordKey(limiter, key)).Err(); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w", op, errors.Join(domain.ErrStorageUnavailable, err))
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// parseInt lê um campo do hash. Campo ausente vale 0; texto que não é número é erro.
func parseInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt record field %q: %w", x, err)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("unexpected record field type %T", v)
	}
}
