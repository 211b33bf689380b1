package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"quota-gateway/middleware/ratelimit"
	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"
	"quota-gateway/middleware/ratelimit/infra"
)

func main() {
	// Exemplo: injetando os middlewares direto no webserver (sem proxy), com backend local
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	reg := application.NewRegistry(infra.NewLocal(), application.WithLogger(logger))

	api, err := application.NewSimple(reg, "api", domain.Profile{Capacity: 100, Window: time.Minute})
	if err != nil {
		logger.Error("api limiter", slog.Any("error", err))
		os.Exit(1)
	}
	login, err := application.NewSkipOnSuccess(reg, "login", domain.Profile{Capacity: 5, Window: 15 * time.Minute})
	if err != nil {
		logger.Error("login limiter", slog.Any("error", err))
		os.Exit(1)
	}
	bulk, err := application.NewBulk(reg, "import", domain.Profile{Capacity: 1000, Window: time.Hour})
	if err != nil {
		logger.Error("import limiter", slog.Any("error", err))
		os.Exit(1)
	}

	base := ratelimit.Options{
		Logger:              logger,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	}

	mux := http.NewServeMux()

	apiOpts := base
	apiOpts.Policy = api
	mux.Handle("GET /", ratelimit.Middleware(apiOpts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})))

	// só senhas erradas contam para o limite de login
	loginOpts := base
	loginOpts.Scope = "login"
	mux.Handle("POST /login", ratelimit.FailureMiddleware(login, loginOpts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "secret" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("welcome\n"))
	})))

	// 250 itens custam 2 pontos
	importOpts := base
	importOpts.Policy = bulk
	importOpts.SizeFn = func(r *http.Request) int {
		n, _ := strconv.Atoi(r.URL.Query().Get("items"))
		return n
	}
	mux.Handle("POST /import", ratelimit.Middleware(importOpts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	mux.Handle("/admin/ratelimit/", http.StripPrefix("/admin/ratelimit", ratelimit.AdminHandler(ratelimit.AdminOptions{
		Admin: application.NewAdmin(reg),
	})))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", slog.String("addr", addr), slog.Any("limiters", reg.Names()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}
