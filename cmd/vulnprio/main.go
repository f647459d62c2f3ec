package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seclens/vulnprio/internal/app"
	"github.com/seclens/vulnprio/internal/config"
	"github.com/seclens/vulnprio/internal/telemetry"
)

func main() {
	// Load config first: the debug flag decides the log level.
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize Tracing
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Initialize Application
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Root context with cancellation on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("vulnprio starting", "addr", cfg.Addr)

	if err := application.Run(ctx); err != nil {
		slog.Error("application error", "error", err)
		cancel()
		os.Exit(1)
	}
}
