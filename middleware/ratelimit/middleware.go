package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) domain.Key

// TierFunc extrai o plano do chamador (ex: header preenchido pela autenticação).
type TierFunc func(r *http.Request) application.Tier

// SizeFunc extrai o tamanho da operação para políticas de custo ponderado.
type SizeFunc func(r *http.Request) int

const rateLimitExceededMessage = "too many requests, please try again later"

type Options struct {
	Policy application.Policy
	Stats  domain.StatsStore
	Logger *slog.Logger

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	// Scope prefixa a chave ("scope_identidade") para separar usos da mesma identidade.
	Scope  string
	TierFn TierFunc
	SizeFn SizeFunc

	RejectStatus        int
	Message             string
	AddRateLimitHeaders bool
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.Key {
		return application.ResolveKey(RequestIdentity(r, keyHeader, trustXFF), "", nil)
	}
}

// RequestIdentity monta a identidade a partir do header de chave e do IP do cliente.
func RequestIdentity(r *http.Request, keyHeader string, trustXFF bool) application.Identity {
	id := application.Identity{IP: clientIP(r, trustXFF)}
	if keyHeader != "" {
		id.UserID = strings.TrimSpace(r.Header.Get(keyHeader))
	}
	return id
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente de origem)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func (opts *Options) applyDefaults() {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.Message == "" {
		opts.Message = rateLimitExceededMessage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
}

func (opts *Options) request(r *http.Request) application.Request {
	key := opts.KeyFn(r)
	if opts.Scope != "" {
		key = domain.Key(opts.Scope + "_" + string(key))
	}
	req := application.Request{Key: key}
	if opts.TierFn != nil {
		req.Tier = opts.TierFn(r)
	}
	if opts.SizeFn != nil {
		req.Size = opts.SizeFn(r)
	}
	return req
}

// Middleware consulta a política antes do handler.
//
// Bloqueado responde 429 com Retry-After; falha de storage segue adiante (fail-open),
// o log de erro fica a cargo da política.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	opts.applyDefaults()

	return func(next http.Handler) http.Handler {
		if opts.Policy == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := opts.request(r)
			ctx := requestContext(r)

			dec := opts.Policy.Decide(ctx, req)
			opts.record(ctx, r, req.Key, dec)

			if opts.AddRateLimitHeaders && dec.Allowed() {
				writeRateLimitHeaders(w, dec)
			}
			if !dec.Proceed() {
				writeTooManyRequests(w, opts.RejectStatus, opts.Message, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// FailureMiddleware protege rotas onde só falhas contam (ex: login).
// A checagem prévia barra chaves bloqueadas; respostas com status >= 400 consomem 1 ponto.
func FailureMiddleware(policy *application.SkipOnSuccess, opts Options) func(next http.Handler) http.Handler {
	opts.Policy = policy
	opts.applyDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := opts.request(r)
			ctx := requestContext(r)

			dec := policy.Decide(ctx, req)
			opts.record(ctx, r, req.Key, dec)
			if !dec.Proceed() {
				writeTooManyRequests(w, opts.RejectStatus, opts.Message, dec)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if sw.status >= http.StatusBadRequest {
				policy.RecordFailure(ctx, req)
			}
		})
	}
}

func requestContext(r *http.Request) context.Context {
	return application.WithLogAttrs(r.Context(),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

func (opts *Options) record(ctx context.Context, r *http.Request, key domain.Key, dec domain.Decision) {
	if opts.Stats == nil {
		return
	}
	err := opts.Stats.Record(ctx, domain.StatsEvent{
		Limiter: dec.Limiter,
		Key:     key,
		Outcome: dec.Outcome,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Now(),
	})
	if err != nil {
		opts.Logger.LogAttrs(ctx, slog.LevelDebug, "rate limit stats record failed", slog.Any("error", err))
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, dec domain.Decision) {
	w.Header().Set("X-RateLimit-Limit", formatInt64(dec.Limit))
	w.Header().Set("X-RateLimit-Remaining", formatInt64(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
	}
}

// RetryAfterSeconds converte para segundos inteiros arredondando para cima (ceil(ms/1000)).
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return (d.Milliseconds() + 999) / 1000
}

type errorBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
	BlockType  string `json:"blockType,omitempty"`
}

func writeTooManyRequests(w http.ResponseWriter, status int, msg string, dec domain.Decision) {
	secs := RetryAfterSeconds(dec.RetryAfter)
	w.Header().Set("Retry-After", formatInt64(secs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Success:    false,
		Error:      msg,
		RetryAfter: secs,
		BlockType:  string(dec.BlockType),
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap deixa http.ResponseController achar Flush no writer original (proxy com streaming).
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
