package application

import (
	"context"
	"log/slog"
	"testing"

	"quota-gateway/middleware/ratelimit/domain"
)

func TestResolveKey(t *testing.T) {
	cases := []struct {
		name  string
		id    Identity
		scope string
		fn    KeyFunc
		want  domain.Key
	}{
		{"user wins over ip", Identity{UserID: "42", IP: "10.0.0.1"}, "", nil, "user:42"},
		{"ip when anonymous", Identity{IP: "10.0.0.1"}, "", nil, "ip:10.0.0.1"},
		{"nothing known", Identity{}, "", nil, "anonymous"},
		{"scoped", Identity{UserID: "42"}, "login", nil, "login_user:42"},
		{"custom fn", Identity{UserID: "42"}, "", func(id Identity) string { return "tenant:acme" }, "tenant:acme"},
		{"custom fn empty falls back", Identity{IP: "10.0.0.1"}, "", func(Identity) string { return " " }, "ip:10.0.0.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveKey(tc.id, tc.scope, tc.fn); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1":          "10.0.0.1",
		" 10.0.0.1:8080 ":   "10.0.0.1",
		"::ffff:10.0.0.1":   "10.0.0.1",
		"[2001:db8::1]:443": "2001:db8::1",
		"fe80::1%eth0":      "fe80::1",
		"not-an-ip":         "not-an-ip",
		"":                  "",
	}
	for in, want := range cases {
		if got := NormalizeIP(in); got != want {
			t.Fatalf("NormalizeIP(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestWithLogAttrs_Appends(t *testing.T) {
	ctx := WithLogAttrs(context.Background(), slog.String("a", "1"))
	ctx = WithLogAttrs(ctx, slog.String("b", "2"))

	attrs := LogAttrs(ctx)
	if len(attrs) != 2 || attrs[0].Key != "a" || attrs[1].Key != "b" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
	if LogAttrs(context.Background()) != nil {
		t.Fatalf("expected nil attrs for bare context")
	}
}
