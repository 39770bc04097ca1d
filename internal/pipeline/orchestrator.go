package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
)

const (
	deployingTask  = "Deploying infrastructure to GCP..."
	deployStarted  = "🚀 **Starting Deployment**\n\nDeploying infrastructure to GCP..."
	deploySkipped  = "⏭️ **Deployment Skipped**\n\nDry run: the Terraform configuration was generated but not applied."
	deployFinished = "✅ **Deployment Complete!**\n\nYour infrastructure is live. The architecture view has been updated with the deployed services."
)

// Options wires an Orchestrator. The three sequential stages and the
// deployment stage are required.
type Options struct {
	Requirements Stage
	Architecture Stage
	IaC          Stage
	Deployment   StreamingStage

	Runner *Runner

	ProjectID string
	Region    string

	// DryRun stops after IaC generation.
	DryRun bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Orchestrator runs the fixed stage sequence for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	steps      []step
	deployment StreamingStage
	runner     *Runner
	projectID  string
	region     string
	dryRun     bool
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// step is a sequential stage with the text shown while it works and the
// summary shown after it completes.
type step struct {
	stage   Stage
	task    string
	summary func(st *domain.PipelineState) string
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		deployment: opts.Deployment,
		runner:     opts.Runner,
		projectID:  opts.ProjectID,
		region:     opts.Region,
		dryRun:     opts.DryRun,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.runner == nil {
		o.runner = NewRunner(WithRunnerLogger(o.logger), WithRunnerMetrics(o.metrics))
	}
	o.steps = []step{
		{opts.Requirements, "Analyzing your requirements...", requirementsSummary},
		{opts.Architecture, "Designing optimal GCP architecture...", architectureSummary},
		{opts.IaC, "Generating Terraform configuration...", terraformSummary},
	}
	return o
}

// Run returns the event sequence for one request. The sequence may be
// iterated once; it never panics past its own boundary except to re-raise
// a panic from the consumer, and it always ends after an error event.
func (o *Orchestrator) Run(ctx context.Context, input string, history []domain.Turn) iter.Seq[domain.WireEvent] {
	var used atomic.Bool
	return func(yield func(domain.WireEvent) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(domain.NewError(o.now(), "Orchestration error: run already consumed"))
			return
		}

		var inYield, stopped bool
		emit := func(ev domain.WireEvent) bool {
			if stopped {
				return false
			}
			o.metrics.RecordEvent(ev.EventType())
			inYield = true
			ok := yield(ev)
			inYield = false
			stopped = !ok
			return ok
		}

		ctx, span := tracer.Start(ctx, "pipeline.run")
		defer span.End()

		result := metrics.ResultError
		o.metrics.RunStarted()
		defer func() { o.metrics.RunFinished(result) }()

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if inYield {
				panic(r)
			}
			o.logger.Error("pipeline panicked", slog.Any("panic", r))
			emit(domain.NewError(o.now(), fmt.Sprintf("Orchestration error: %v", r)))
		}()

		st := domain.NewPipelineState(input, history, o.projectID, o.region)
		if o.run(ctx, st, emit) {
			result = metrics.ResultSuccess
		}
		span.SetAttributes(
			attribute.String("deployment_id", st.DeploymentID),
			attribute.Int("errors", len(st.Errors)),
		)
	}
}

func (o *Orchestrator) run(ctx context.Context, st *domain.PipelineState, emit func(domain.WireEvent) bool) bool {
	for _, s := range o.steps {
		if !o.runStep(ctx, st, s, emit) {
			return false
		}
	}
	return o.runDeployment(ctx, st, emit)
}

func (o *Orchestrator) runStep(ctx context.Context, st *domain.PipelineState, s step, emit func(domain.WireEvent) bool) bool {
	name := s.stage.Name()
	if !emit(domain.NewAgentStatus(o.now(), name, domain.AgentWorking, s.task)) {
		return false
	}

	if added := o.runner.Run(ctx, st, s.stage); len(added) > 0 {
		emit(domain.NewError(o.now(), strings.Join(added, "\n")))
		return false
	}

	return emit(domain.NewText(o.now(), name, s.summary(st))) &&
		emit(domain.NewAgentStatus(o.now(), name, domain.AgentCompleted, ""))
}

func (o *Orchestrator) runDeployment(ctx context.Context, st *domain.PipelineState, emit func(domain.WireEvent) bool) bool {
	name := domain.StageDeployment
	if !emit(domain.NewAgentStatus(o.now(), name, domain.AgentWorking, deployingTask)) {
		return false
	}

	if o.dryRun {
		o.runner.Skip(st, name, "dry run")
		return emit(domain.NewText(o.now(), name, deploySkipped)) &&
			emit(domain.NewAgentStatus(o.now(), name, domain.AgentCompleted, ""))
	}

	if !emit(domain.NewText(o.now(), name, deployStarted)) {
		return false
	}

	before := len(st.Errors)
	for ev := range o.runner.RunStreaming(ctx, st, o.deployment) {
		if !emit(domain.NewDeploymentStatus(o.now(), ev)) {
			return false
		}
	}
	if len(st.Errors) > before {
		emit(domain.NewError(o.now(), strings.Join(st.Errors[before:], "\n")))
		return false
	}

	if st.Deployment != nil && st.Deployment.Snapshot != nil {
		if !emit(domain.NewArchitecture(o.now(), st.Deployment.Snapshot)) {
			return false
		}
	}
	return emit(domain.NewText(o.now(), name, deployFinished)) &&
		emit(domain.NewAgentStatus(o.now(), name, domain.AgentCompleted, ""))
}

func requirementsSummary(st *domain.PipelineState) string {
	var summary string
	if st.Requirements != nil {
		summary = st.Requirements.Summary
	}
	return "✓ **Requirements Analysis Complete**\n\n" + summary
}

func architectureSummary(st *domain.PipelineState) string {
	var plan domain.ArchitecturePlan
	if st.Architecture != nil {
		plan = *st.Architecture
	}
	return fmt.Sprintf("✓ **Architecture Design Complete**\n\n%s\n\n**Estimated Monthly Cost:** $%.2f", plan.Explanation, plan.EstimatedCost)
}

func terraformSummary(st *domain.PipelineState) string {
	var files int
	if st.Terraform != nil {
		files = len(st.Terraform.Files)
	}
	return fmt.Sprintf("✓ **Terraform Configuration Generated**\n\n**Deployment ID:** `%s`\n\nGenerated %d Terraform files", st.DeploymentID, files)
}
