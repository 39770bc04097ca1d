package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/runtime"
	"github.com/KaranKendre11/VibeOPS/internal/stream"
)

// ErrRunFailed is returned when the stream ended with an error event.
var ErrRunFailed = errors.New("run failed")

// RunOptions configures a single local run.
type RunOptions struct {
	Input       string
	HistoryFile string
	DryRun      bool
	Out         io.Writer
	Err         io.Writer

	// Extra runtime options, used by tests to replace dependencies.
	AppOptions []runtime.Option
}

// Run executes the pipeline once and writes the framed events to Out.
func Run(ctx context.Context, g Globals, opts RunOptions) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if opts.DryRun {
		cfg.Pipeline.DryRun = true
	}
	logger, err := newLogger(g.LogLevel, opts.Err)
	if err != nil {
		return err
	}

	history, err := readHistory(opts.HistoryFile)
	if err != nil {
		return err
	}

	appOpts := append([]runtime.Option{
		runtime.WithConfig(cfg),
		runtime.WithLogger(logger),
		runtime.WithTraceWriter(opts.Err),
	}, opts.AppOptions...)
	app, err := runtime.New(ctx, appOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Shutdown(context.Background())

	runID, events := app.Run(ctx, opts.Input, history)
	if runID != "" {
		fmt.Fprintf(opts.Err, "run id: %s\n", runID)
	}

	failed := false
	for frame := range stream.Frames(watchErrors(events, &failed)) {
		if _, err := opts.Out.Write(frame); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if failed {
		return ErrRunFailed
	}
	return nil
}

func watchErrors(events iter.Seq[domain.WireEvent], failed *bool) iter.Seq[domain.WireEvent] {
	return func(yield func(domain.WireEvent) bool) {
		for ev := range events {
			if ev.EventType() == domain.EventError {
				*failed = true
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func readHistory(path string) ([]domain.Turn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var turns []domain.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return turns, nil
}
