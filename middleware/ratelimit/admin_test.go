package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"
	"quota-gateway/middleware/ratelimit/infra"

	"golang.org/x/time/rate"
)

func newAdminFixture(t *testing.T, guard *rate.Limiter) (http.Handler, *application.Registry) {
	t.Helper()
	reg := application.NewRegistry(infra.NewLocal())
	for name, capacity := range map[string]int64{"api": 10, "login": 5} {
		if _, err := reg.GetOrCreate(name, domain.Profile{Capacity: capacity, Window: time.Minute}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	h := AdminHandler(AdminOptions{Admin: application.NewAdmin(reg), Guard: guard})
	return h, reg
}

func serveAdmin(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestAdminHandler_Stats(t *testing.T) {
	h, reg := newAdminFixture(t, nil)
	api, _ := reg.Lookup("api")
	for i := 0; i < 11; i++ {
		_ = api.Consume(context.Background(), "user:1", 1)
	}

	w := serveAdmin(h, http.MethodGet, "/stats/user:1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body adminResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if !body.Success || body.Key != "user:1" {
		t.Fatalf("unexpected body: %+v", body)
	}
	st := body.Limiters["api"]
	if !st.IsBlocked || st.Remaining != 0 || st.Limit != 10 || st.MsBeforeNext <= 0 {
		t.Fatalf("unexpected api status: %+v", st)
	}
	if body.Limiters["login"].Remaining != 5 {
		t.Fatalf("unexpected login status: %+v", body.Limiters["login"])
	}
}

func TestAdminHandler_ResetAll(t *testing.T) {
	h, reg := newAdminFixture(t, nil)
	api, _ := reg.Lookup("api")
	_ = api.Consume(context.Background(), "user:1", 10)

	if w := serveAdmin(h, http.MethodDelete, "/reset/user:1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if d := api.Consume(context.Background(), "user:1", 1); d.Remaining != 9 {
		t.Fatalf("expected capacity-cost after reset, got %d", d.Remaining)
	}
}

func TestAdminHandler_ResetUnknownLimiter(t *testing.T) {
	h, _ := newAdminFixture(t, nil)

	w := serveAdmin(h, http.MethodDelete, "/reset/user:1/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	var body adminResponse
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body.Success || body.Failures["nope"] == "" {
		t.Fatalf("expected failure entry for unknown limiter, got %+v", body)
	}
}

func TestAdminHandler_ResetSingleLimiter(t *testing.T) {
	h, reg := newAdminFixture(t, nil)
	login, _ := reg.Lookup("login")
	_ = login.Consume(context.Background(), "user:1", 5)

	if w := serveAdmin(h, http.MethodDelete, "/reset/user:1/login"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if st, _ := login.Status(context.Background(), "user:1"); st.Remaining != 5 {
		t.Fatalf("expected login reset, remaining=%d", st.Remaining)
	}
}

func TestAdminHandler_GuardRejectsBursts(t *testing.T) {
	h, _ := newAdminFixture(t, rate.NewLimiter(rate.Every(time.Hour), 1))

	if w := serveAdmin(h, http.MethodGet, "/stats/k"); w.Code != http.StatusOK {
		t.Fatalf("expected first admin call to pass, got %d", w.Code)
	}
	w := serveAdmin(h, http.MethodGet, "/stats/k")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from guard, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After from guard")
	}
}

func TestAdminHandler_UnknownRoute(t *testing.T) {
	h, _ := newAdminFixture(t, nil)
	if w := serveAdmin(h, http.MethodPost, "/reset/k"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAdminHandler_Summary(t *testing.T) {
	reg := application.NewRegistry(infra.NewLocal())
	stats := infra.NewMemoryStatsStore()
	_ = stats.Record(context.Background(), domain.StatsEvent{Limiter: "api", Outcome: domain.OutcomeBlocked})

	h := AdminHandler(AdminOptions{Admin: application.NewAdmin(reg), Stats: stats})
	w := serveAdmin(h, http.MethodGet, "/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body summaryResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Total["blocked"] != 1 || body.Limiters["api"]["blocked"] != 1 {
		t.Fatalf("unexpected summary: %+v", body)
	}

	// sem store configurado a rota não existe
	h, _ = newAdminFixture(t, nil)
	if w := serveAdmin(h, http.MethodGet, "/summary"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without stats, got %d", w.Code)
	}
}
