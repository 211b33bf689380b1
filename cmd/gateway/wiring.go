package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"quota-gateway/internal/config"
	"quota-gateway/middleware/ratelimit/application"

	"github.com/google/uuid"
)

// buildPolicy monta a política principal escolhida em RATE_POLICY.
func buildPolicy(cfg config.Config, reg *application.Registry) (application.Policy, error) {
	p := cfg.Policies
	switch cfg.Policy {
	case "simple":
		api, ok := p.Limiters["api"]
		if !ok {
			return nil, fmt.Errorf("policy simple requires limiter %q", "api")
		}
		return application.NewSimple(reg, "api", api.Profile())
	case "bulk":
		bulk, ok := p.Limiters["bulk"]
		if !ok {
			return nil, fmt.Errorf("policy bulk requires limiter %q", "bulk")
		}
		return application.NewBulk(reg, "bulk", bulk.Profile())
	case "tiered":
		return application.NewTiered(reg, p.TierProfiles())
	case "progressive":
		return application.NewProgressive(reg, "progressive", p.Progressive.Short.Profile(), p.Progressive.Long.Profile())
	}
	return nil, fmt.Errorf("unsupported policy %q", cfg.Policy)
}

// buildLogin registra o limiter "auth" quando ele conta só falhas.
// Sem esse limiter o path de login segue a política principal.
func buildLogin(cfg config.Config, reg *application.Registry) (*application.SkipOnSuccess, error) {
	auth, ok := cfg.Policies.Limiters["auth"]
	if !ok || !auth.SkipOnSuccess || cfg.LoginPath == "" {
		return nil, nil
	}
	return application.NewSkipOnSuccess(reg, "auth", auth.Profile())
}

func tierFromHeader(header string) func(*http.Request) application.Tier {
	return func(r *http.Request) application.Tier {
		return application.ParseTier(r.Header.Get(header))
	}
}

// sizeFromHeader lê a quantidade de itens do lote. Valor ausente ou inválido vale 0 (custo mínimo).
func sizeFromHeader(header string) func(*http.Request) int {
	return func(r *http.Request) int {
		n, err := strconv.Atoi(strings.TrimSpace(r.Header.Get(header)))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
}

// requestID propaga (ou gera) X-Request-Id e anexa o id aos logs de rate limit.
func requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if id == "" {
				id = uuid.NewString()
				r.Header.Set("X-Request-Id", id)
			}
			w.Header().Set("X-Request-Id", id)

			ctx := application.WithLogAttrs(r.Context(), slog.String("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
