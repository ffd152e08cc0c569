package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musescore-server/internal/api"
	"musescore-server/internal/config"
	"musescore-server/internal/jobs"
	"musescore-server/internal/logging"
	"musescore-server/internal/metrics"
	"musescore-server/internal/musescore"
	"musescore-server/internal/server"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Filesystem: scratch directory
	if err := server.PrepareFilesystem(cfg); err != nil {
		return err
	}

	// 2. Tool discovery, once, before accepting traffic. A miss is not fatal.
	tool, err := musescore.Locate(ctx, cfg.ToolCandidates, logger)
	if err != nil && !errors.Is(err, musescore.ErrToolUnavailable) {
		return err
	}

	// 3. Services: engine, manager, janitor
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := musescore.NewEngine(tool, musescore.Options{
		Timeout:   cfg.ConvertTimeout,
		Display:   cfg.HeadlessDisplay,
		Offscreen: cfg.HeadlessOffscreen,
		Logger:    logger,
	})
	manager := jobs.NewManager(cfg, engine, m, logger)
	janitor := jobs.NewJanitor(cfg, m, logger)
	if err := janitor.Start(); err != nil {
		return err
	}

	// 4. Router with middleware
	handler := api.NewHandler(cfg, manager, engine, m, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit: api.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		},
		DebugEndpoint: cfg.DebugEndpoint,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads stream slowly and conversions may take the full timeout.
		WriteTimeout:   cfg.ConvertTimeout + cfg.QueueWait + 30*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 5. Start
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("MIDI to MusicXML server started", "addr", cfg.Port, "tool", tool.Command, "scratch_dir", cfg.ScratchDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		janitor.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
