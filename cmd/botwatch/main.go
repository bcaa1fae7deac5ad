package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/botwatch/api"
	"github.com/use-agent/botwatch/cache"
	"github.com/use-agent/botwatch/classifier"
	"github.com/use-agent/botwatch/collector"
	"github.com/use-agent/botwatch/config"
	"github.com/use-agent/botwatch/queue"
	"github.com/use-agent/botwatch/scraper"
	"github.com/use-agent/botwatch/state"
	"github.com/use-agent/botwatch/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("botwatch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"queuePolicy", cfg.Queue.Policy,
	)

	// ── 3. Initialise scraper (launches browser) ────────────────────
	col := collector.New(cfg.Collector, collector.WithLogger(slog.Default()))
	sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper, col)
	if err != nil {
		slog.Error("failed to initialise scraper", "error", err)
		os.Exit(1)
	}
	defer sc.Close()

	// ── 4. State, cache, webhook relay ──────────────────────────────
	store := state.New(time.Hour)
	defer store.Close()
	cc := cache.New(cfg.Cache.MaxEntries)
	wh := webhook.New(cfg.Webhook.Secret)

	// ── 5. Classifier + analysis queue ──────────────────────────────
	cl := classifier.NewClient(
		&http.Client{Timeout: cfg.Classifier.Timeout},
		cfg.Classifier.Endpoint,
		cfg.Classifier.StatusEndpoint,
	)
	q, err := queue.New(cfg.Queue, cfg.Classifier.RequestsPerSecond, store, cl)
	if err != nil {
		slog.Error("failed to initialise analysis queue", "error", err)
		sc.Close()
		os.Exit(1)
	}
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	go q.Run(queueCtx)

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(api.Deps{
		Scraper:    sc,
		Queue:      q,
		Classifier: cl,
		Store:      store,
		Cache:      cc,
		Webhook:    wh,
	}, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// SSE streams end with their request context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	stopQueue()

	// sc.Close() runs via defer and aborts in-flight collections.
	slog.Info("botwatch stopped")
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
