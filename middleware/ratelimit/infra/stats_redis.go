package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quota-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore acumula decisões em hashes do Redis, compartilhados entre instâncias.
//
// Layout (prefixo padrão "ratelimit:stats"):
//
//	<prefix>:total                 outcome -> n
//	<prefix>:limiter               "<limiter>:<outcome>" -> n
//	<prefix>:route                 "<método> <path>:<outcome>" -> n
//	<prefix>:minute:<yyyymmddhhmm> outcome -> n  (expira em ttl)
//	<prefix>:key:<key>             outcome -> n  (só com trackKeys, expira em ttl)
type RedisStatsStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	// bucket "minute" grava a série por minuto; "none" desliga.
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ domain.StatsStore  = (*RedisStatsStore)(nil)
	_ domain.StatsReader = (*RedisStatsStore)(nil)
)

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := ev.Outcome.String()

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), outcome, 1)
	if ev.Limiter != "" {
		pipe.HIncrBy(ctx, s.key("limiter"), ev.Limiter+":"+outcome, 1)
	}
	if route := ev.Route(); route != "" {
		pipe.HIncrBy(ctx, s.key("route"), route+":"+outcome, 1)
	}
	if s.bucket == "minute" {
		s.incrExpiring(ctx, pipe, s.key("minute", at.UTC().Format("200601021504")), outcome)
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		s.incrExpiring(ctx, pipe, s.key("key", k), outcome)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Summary lê os hashes total e limiter.
func (s *RedisStatsStore) Summary(ctx context.Context) (domain.StatsSummary, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.key("total"))
	limiterCmd := pipe.HGetAll(ctx, s.key("limiter"))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSummary{}, fmt.Errorf("read stats: %w", err)
	}

	sum := domain.StatsSummary{
		Total:     make(map[string]int64),
		ByLimiter: make(map[string]map[string]int64),
	}
	for outcome, v := range totalCmd.Val() {
		sum.Total[outcome] = atoi64(v)
	}
	for field, v := range limiterCmd.Val() {
		// o nome do limiter pode conter ":"; o outcome nunca
		i := strings.LastIndexByte(field, ':')
		if i <= 0 {
			continue
		}
		name, outcome := field[:i], field[i+1:]
		if sum.ByLimiter[name] == nil {
			sum.ByLimiter[name] = make(map[string]int64)
		}
		sum.ByLimiter[name][outcome] = atoi64(v)
	}
	return sum, nil
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
