package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/runtime"
)

const shutdownTimeout = 30 * time.Second

// Serve runs the HTTP API until SIGINT or SIGTERM, then drains open streams.
func Serve(ctx context.Context, g Globals, version string) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	logger, err := newLogger(g.LogLevel, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	app, err := runtime.New(ctx,
		runtime.WithConfig(cfg),
		runtime.WithLogger(logger),
		runtime.WithVersion(version),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		_ = app.Shutdown(context.Background())
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-app.Errors():
		logger.Error("server stopped", slog.Any("error", serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
