package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

type AdminOptions struct {
	Admin *application.Admin
	// Stats habilita GET /summary com os contadores acumulados. Opcional.
	Stats domain.StatsReader
	// Guard limita a taxa global das rotas administrativas. nil = sem limite.
	Guard *rate.Limiter
}

type limiterStatusBody struct {
	Limit        int64 `json:"limit"`
	Remaining    int64 `json:"remainingPoints"`
	MsBeforeNext int64 `json:"msBeforeNext"`
	IsBlocked    bool  `json:"isBlocked"`
}

type adminResponse struct {
	Success  bool                         `json:"success"`
	Key      string                       `json:"key"`
	Limiters map[string]limiterStatusBody `json:"limiters,omitempty"`
	Failures map[string]string            `json:"failures,omitempty"`
}

// AdminHandler expõe:
//
//	GET    /stats/{key}
//	DELETE /reset/{key}
//	DELETE /reset/{key}/{limiter}
//	GET    /summary              (só com Stats)
//
// Falha parcial responde 207 com os limiters que falharam em "failures".
func AdminHandler(opts AdminOptions) http.Handler {
	r := chi.NewRouter()
	if opts.Guard != nil {
		r.Use(guard(opts.Guard))
	}

	r.Get("/stats/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		stats, err := opts.Admin.Stats(r.Context(), domain.Key(key))

		body := adminResponse{Success: err == nil, Key: key, Limiters: make(map[string]limiterStatusBody, len(stats))}
		for name, st := range stats {
			body.Limiters[name] = limiterStatusBody{
				Limit:        st.Limit,
				Remaining:    st.Remaining,
				MsBeforeNext: st.ResetIn.Milliseconds(),
				IsBlocked:    st.Blocked,
			}
		}
		writeAdmin(w, body, err)
	})

	reset := func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		var names []string
		if name := chi.URLParam(r, "limiter"); name != "" {
			names = append(names, name)
		}
		err := opts.Admin.Reset(r.Context(), domain.Key(key), names...)
		writeAdmin(w, adminResponse{Success: err == nil, Key: key}, err)
	}
	r.Delete("/reset/{key}", reset)
	r.Delete("/reset/{key}/{limiter}", reset)

	if opts.Stats != nil {
		r.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
			sum, err := opts.Stats.Summary(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(summaryResponse{Success: true, Total: sum.Total, Limiters: sum.ByLimiter})
		})
	}

	return r
}

type summaryResponse struct {
	Success  bool                        `json:"success"`
	Total    map[string]int64            `json:"total"`
	Limiters map[string]map[string]int64 `json:"limiters"`
}

func writeAdmin(w http.ResponseWriter, body adminResponse, err error) {
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		var pf *application.PartialFailureError
		if errors.As(err, &pf) {
			body.Failures = make(map[string]string, len(pf.Failures))
			for name, ferr := range pf.Failures {
				body.Failures[name] = ferr.Error()
			}
			status = http.StatusMultiStatus
			if errors.Is(err, application.ErrUnknownLimiter) && len(pf.Failures) == 1 && len(body.Limiters) == 0 {
				status = http.StatusNotFound
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func guard(lim *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
