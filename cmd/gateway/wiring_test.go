package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"quota-gateway/internal/config"
	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/infra"
)

func TestBuildPolicy(t *testing.T) {
	cases := map[string][]string{
		"simple":      {"api"},
		"bulk":        {"bulk"},
		"tiered":      {"tier_basic", "tier_enterprise", "tier_free", "tier_pro"},
		"progressive": {"progressive_long", "progressive_short"},
	}

	for policy, want := range cases {
		t.Run(policy, func(t *testing.T) {
			reg := application.NewRegistry(infra.NewLocal())
			cfg := config.Config{Policy: policy, Policies: config.DefaultPolicies()}

			if _, err := buildPolicy(cfg, reg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := reg.Names()
			if len(got) != len(want) {
				t.Fatalf("expected limiters %v, got %v", want, got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected limiters %v, got %v", want, got)
				}
			}
		})
	}
}

func TestBuildPolicy_MissingLimiter(t *testing.T) {
	reg := application.NewRegistry(infra.NewLocal())
	cfg := config.Config{Policy: "simple", Policies: config.Policies{}}
	if _, err := buildPolicy(cfg, reg); err == nil {
		t.Fatalf("expected error without an api limiter")
	}
}

func TestBuildLogin(t *testing.T) {
	reg := application.NewRegistry(infra.NewLocal())
	cfg := config.Config{LoginPath: "/login", Policies: config.DefaultPolicies()}

	login, err := buildLogin(cfg, reg)
	if err != nil || login == nil {
		t.Fatalf("expected login limiter, got %v (err=%v)", login, err)
	}

	cfg.Policies.Limiters = map[string]config.LimiterConfig{"auth": {CapacityPoints: 5, WindowSeconds: 60}}
	if login, _ := buildLogin(cfg, application.NewRegistry(infra.NewLocal())); login != nil {
		t.Fatalf("auth without skip_on_success must not build a login limiter")
	}
}

func TestSizeFromHeader(t *testing.T) {
	fn := sizeFromHeader("X-Bulk-Items")
	cases := map[string]int{"250": 250, " 7 ": 7, "": 0, "abc": 0, "-3": 0}
	for in, want := range cases {
		r := httptest.NewRequest(http.MethodPost, "/import", nil)
		r.Header.Set("X-Bulk-Items", in)
		if got := fn(r); got != want {
			t.Fatalf("size(%q): expected %d, got %d", in, want, got)
		}
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := requestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, a := range application.LogAttrs(r.Context()) {
			if a.Key == "request_id" {
				seen = a.Value.String()
			}
		}
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || w.Header().Get("X-Request-Id") != seen {
		t.Fatalf("expected generated request id, got %q / %q", seen, w.Header().Get("X-Request-Id"))
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "abc" {
		t.Fatalf("expected incoming request id to be kept, got %q", seen)
	}
}
