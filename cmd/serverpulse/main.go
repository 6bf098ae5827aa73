package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/api"
	"github.com/serverpulse/serverpulse/internal/collector"
	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/coordinator"
	"github.com/serverpulse/serverpulse/internal/dispatch"
	"github.com/serverpulse/serverpulse/internal/score"
	"github.com/serverpulse/serverpulse/internal/telemetry"
	"github.com/serverpulse/serverpulse/internal/trend"
	"github.com/serverpulse/serverpulse/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("serverpulse starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"tick_interval", cfg.Monitor.TickInterval,
		"http_port", cfg.Monitor.HTTPPort,
		"alert_channels", len(cfg.Channels.Webhooks),
		"email_enabled", cfg.Channels.Email.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collectors, accessLog, err := buildCollectors(cfg)
	if err != nil {
		slog.Error("failed to build collectors", "err", err)
		os.Exit(1)
	}
	if len(collectors) == 0 {
		slog.Error("no collectors enabled; nothing to monitor")
		os.Exit(1)
	}

	metrics := telemetry.New()
	dispatcher := dispatch.NewFromConfig(cfg.Channels, cfg.Monitor.DispatchTimeout, metrics)
	slog.Info("alert dispatcher ready", "channels", dispatcher.ChannelCount())

	coord := coordinator.New(coordinator.Options{
		Collectors:       collectors,
		AccessLog:        accessLog,
		Predictor:        trend.New(cfg.Trend.Window, cfg.Trend.Smoothing, cfg.Trend.Horizon),
		Scorer:           score.New(cfg.Health, cfg.Alerts.Rules),
		Engine:           alert.NewEngine(cfg.Alerts),
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		TickInterval:     cfg.Monitor.TickInterval,
		CollectorTimeout: cfg.Monitor.CollectorTimeout,
	})
	go coord.Run(ctx)

	// Hot-reload thresholds and weights when the config file changes.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			coord.ApplyConfig(next)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	// WebSocket hub — pushes the latest status to dashboard clients.
	hub := ws.New(coord, cfg.Monitor.BroadcastInterval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API + self metrics + WebSocket hub.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(coord))
	httpMux.Handle("/metrics", metrics.Handler())
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitor.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Monitor.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("serverpulse shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// buildCollectors instantiates every enabled metric source. The returned
// access-log collector (if any) is also included in the slice.
func buildCollectors(cfg *config.Config) ([]collector.Collector, *collector.AccessLogCollector, error) {
	var (
		out       []collector.Collector
		accessLog *collector.AccessLogCollector
	)

	if cfg.Collectors.OS.Enabled {
		out = append(out, collector.NewOS(cfg.Collectors.OS))
	}
	if cfg.Collectors.Prometheus.Enabled {
		pc, err := collector.NewPrometheus(cfg.Collectors.Prometheus)
		if err != nil {
			return nil, nil, fmt.Errorf("prometheus collector: %w", err)
		}
		out = append(out, pc)
	}
	if cfg.Collectors.JVM.Enabled {
		out = append(out, collector.NewJVM(cfg.Collectors.JVM))
	}
	if cfg.Collectors.AccessLog.Enabled {
		accessLog = collector.NewAccessLog(cfg.Collectors.AccessLog)
		out = append(out, accessLog)
	}

	for _, c := range out {
		slog.Info("collector enabled", "source", c.Name())
	}
	return out, accessLog, nil
}
