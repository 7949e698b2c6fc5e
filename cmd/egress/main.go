package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/radiant/egress/api"
	"github.com/radiant/egress/cache"
	"github.com/radiant/egress/config"
	"github.com/radiant/egress/executor"
	"github.com/radiant/egress/pool"
	"github.com/radiant/egress/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	_ = godotenv.Load() // .env is optional
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "egress: invalid configuration:", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("egress starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"providers", len(cfg.Providers),
	)

	// ── 3. Register providers ───────────────────────────────────────
	if len(cfg.Providers) == 0 {
		slog.Error("no providers configured; set EGRESS_PROVIDERS_FILE or EGRESS_PROVIDERS")
		os.Exit(1)
	}
	registry := pool.NewRegistry()
	for name, p := range cfg.Providers {
		err := registry.Register(name, pool.ProviderConfig{
			BaseURL:                 p.BaseURL,
			MaxConnections:          p.MaxConnections,
			MaxStreamsPerConnection: p.MaxStreamsPerConnection,
			DefaultHeaders:          p.DefaultHeaders,
		})
		if err != nil {
			slog.Error("failed to register provider", "provider", name, "error", err)
			os.Exit(1)
		}
		slog.Info("provider registered",
			"provider", name,
			"base_url", p.BaseURL,
			"max_connections", p.MaxConnections,
			"max_streams_per_connection", p.MaxStreamsPerConnection,
		)
	}

	// ── 4. Initialise pool manager + executor ───────────────────────
	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
	var events pool.EventSink
	if notifier != nil {
		events = notifier
		slog.Info("webhook notifications enabled", "url", cfg.Webhook.URL)
	}
	manager := pool.NewManager(registry, cfg.Pool, pool.DialHTTP2, events)
	manager.Start()
	defer manager.Close()

	ex := executor.New(manager, cfg.Pool.RequestTimeout)

	// ── 5. Initialise cache + router ────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	startTime := time.Now()
	router := api.NewRouter(ex, manager, cfg, cc, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// manager.Close() runs via defer — closes every pooled session.
	slog.Info("egress stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
