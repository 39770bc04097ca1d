// Package runtime assembles the pipeline, its dependencies and the HTTP
// server from configuration, and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/agents"
	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/deploy"
	"github.com/KaranKendre11/VibeOPS/internal/inventory"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
	"github.com/KaranKendre11/VibeOPS/internal/pipeline"
	"github.com/KaranKendre11/VibeOPS/internal/pricing"
	"github.com/KaranKendre11/VibeOPS/internal/provider"
	"github.com/KaranKendre11/VibeOPS/internal/server"
	"github.com/KaranKendre11/VibeOPS/internal/storage"
	"github.com/KaranKendre11/VibeOPS/internal/telemetry"
	"github.com/KaranKendre11/VibeOPS/internal/terraform"
	"github.com/KaranKendre11/VibeOPS/internal/tokens"
)

// App owns every process-wide dependency. Components are built once in New
// and shared read-only by all requests.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	version string
	addr    string

	completer   ports.Completer
	provisioner ports.Provisioner
	inventory   ports.Inventory
	store       ports.RunStore
	storeSet    bool
	traceWriter io.Writer

	orchestrator   *pipeline.Orchestrator
	recorder       *storage.Recorder
	server         *server.Server
	shutdownTracer func(context.Context) error

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// New builds an App. Dependencies not supplied through options are built
// from the configuration.
func New(ctx context.Context, opts ...Option) (*App, error) {
	a := &App{now: time.Now, traceWriter: os.Stderr}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if a.cfg == nil {
		return nil, errors.New("config required (use WithConfig)")
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	if a.addr == "" {
		a.addr = a.cfg.Addr()
	}

	shutdown, err := telemetry.InitTracer(a.cfg.Telemetry, a.traceWriter, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdown

	if err := a.initDependencies(ctx); err != nil {
		a.closeResources(ctx)
		return nil, err
	}
	a.initPipeline()

	a.server = server.New(a.addr, server.Deps{
		Pipeline:       a.orchestrator,
		Inventory:      a.inventory,
		Runs:           a.store,
		Recorder:       a.recorder,
		Metrics:        a.metrics,
		Logger:         a.logger,
		Version:        a.version,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	})
	return a, nil
}

func (a *App) initDependencies(ctx context.Context) error {
	if a.completer == nil {
		c, err := provider.New(a.cfg.LLM, nil)
		if err != nil {
			return fmt.Errorf("create completer: %w", err)
		}
		a.completer = c
	}

	if a.provisioner == nil {
		env := make([]string, 0, len(a.cfg.Terraform.Env))
		for k, v := range a.cfg.Terraform.Env {
			env = append(env, k+"="+v)
		}
		sort.Strings(env)
		r, err := terraform.New(a.cfg.Terraform.WorkspaceRoot,
			terraform.WithBinary(a.cfg.Terraform.Binary),
			terraform.WithEnv(env...),
			terraform.WithLogger(a.logger),
		)
		if err != nil {
			return fmt.Errorf("create terraform runner: %w", err)
		}
		a.provisioner = r
	}

	if !a.storeSet {
		store, err := storage.Open(a.cfg.Storage)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		a.store = store
		a.storeSet = true
	}

	if a.inventory == nil {
		inv, err := inventory.New(ctx, a.cfg.Inventory, a.cfg.GCP, a.logger, a.metrics)
		if err != nil {
			return fmt.Errorf("create inventory: %w", err)
		}
		a.inventory = inv
	}
	return nil
}

func (a *App) initPipeline() {
	history := tokens.NewHistoryBudget(
		tokens.NewCounter(a.cfg.LLM.Model),
		a.cfg.Pipeline.HistoryTurns,
		a.cfg.Pipeline.HistoryTokens,
	)
	aggregator := deploy.NewAggregator(a.provisioner,
		deploy.WithPhaseTimeout(a.cfg.Terraform.PhaseTimeout),
		deploy.WithLogger(a.logger),
		deploy.WithPhaseObserver(a.metrics.RecordPhase),
	)

	a.orchestrator = pipeline.New(pipeline.Options{
		Requirements: agents.NewRequirements(a.completer, history, a.logger),
		Architecture: agents.NewArchitecture(a.completer, pricing.NewCalculator(), a.logger),
		IaC:          agents.NewIaC(a.completer, a.provisioner, a.logger),
		Deployment:   agents.NewDeployment(aggregator, a.logger),
		Runner: pipeline.NewRunner(
			pipeline.WithRetries(a.cfg.Pipeline.StageRetries),
			pipeline.WithRunnerLogger(a.logger),
			pipeline.WithRunnerMetrics(a.metrics),
		),
		ProjectID: a.cfg.GCP.ProjectID,
		Region:    a.cfg.GCP.Region,
		DryRun:    a.cfg.Pipeline.DryRun,
		Logger:    a.logger,
		Metrics:   a.metrics,
		Now:       a.now,
	})
	a.recorder = storage.NewRecorder(a.store, a.logger)
}

// Run executes one pipeline run outside HTTP and records it like the chat
// endpoint does.
func (a *App) Run(ctx context.Context, input string, history []domain.Turn) (string, iter.Seq[domain.WireEvent]) {
	return a.recorder.Record(ctx, input, a.orchestrator.Run(ctx, input, history))
}

// Runs returns the run history store, nil when history is off.
func (a *App) Runs() ports.RunStore { return a.store }

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.server }

// Start binds the listen address and serves in the background.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return errors.New("app already started")
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.addr, err)
	}
	a.listener = l
	a.serveErr = make(chan error, 1)

	go func() {
		a.serveErr <- a.server.Serve(l)
	}()

	a.logger.Info("vibeops started",
		slog.String("addr", l.Addr().String()),
		slog.String("llm_provider", a.cfg.LLM.Provider),
		slog.String("storage", a.cfg.Storage.Type),
		slog.Bool("dry_run", a.cfg.Pipeline.DryRun))
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.addr
}

// Errors reports a serve failure after Start. It is nil before Start.
func (a *App) Errors() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.serveErr
}

// Shutdown stops the server, waiting for open streams, then releases the
// store and flushes traces.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var errs []error
	a.mu.Lock()
	started := a.listener != nil
	a.mu.Unlock()
	if started {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.closeResources(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close run store: %w", err))
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
