package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
)

var tracer = otel.Tracer("vibeops/pipeline")

// Runner executes single stages against the state and applies their
// results. It owns the retry policy; the streaming deployment stage is
// never retried.
type Runner struct {
	retries    int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type RunnerOption func(*Runner)

// WithRetries sets how many times a failed stage is re-executed.
func WithRetries(n int) RunnerOption {
	return func(r *Runner) {
		r.retries = max(n, 0)
	}
}

// WithBackOff sets the delay policy between retries.
func WithBackOff(fn func() backoff.BackOff) RunnerOption {
	return func(r *Runner) {
		r.newBackOff = fn
	}
}

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes stage, retrying failures up to the configured count, and
// applies the final result to st. It returns the errors the stage added.
func (r *Runner) Run(ctx context.Context, st *domain.PipelineState, stage Stage) []string {
	name := stage.Name()
	ctx, span := tracer.Start(ctx, "stage."+string(name), trace.WithAttributes(attribute.String("stage", string(name))))
	defer span.End()

	start := time.Now()
	st.CurrentStep = string(name)

	var res domain.StageResult
	if r.retries == 0 {
		res = stage.Execute(ctx, st)
	} else {
		b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.retries)), ctx)
		op := func() error {
			res = stage.Execute(ctx, st)
			if res.Failed() {
				return errors.New(strings.Join(res.Errors, "\n"))
			}
			return nil
		}
		notify := func(err error, wait time.Duration) {
			r.metrics.RecordRetry(name)
			r.logger.Warn("retrying stage",
				slog.String("stage", string(name)),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}
		// The outcome is carried by res.
		_ = backoff.RetryNotify(op, b, notify)
	}

	added := r.apply(st, name, res)
	r.finish(span, name, start, added)
	return added
}

// RunStreaming drives stage and yields its progress events. The result is
// applied to st once the terminal event has been consumed; when the
// consumer stops early nothing is applied.
func (r *Runner) RunStreaming(ctx context.Context, st *domain.PipelineState, stage StreamingStage) iter.Seq[domain.ProgressEvent] {
	return func(yield func(domain.ProgressEvent) bool) {
		name := stage.Name()
		ctx, span := tracer.Start(ctx, "stage."+string(name), trace.WithAttributes(attribute.String("stage", string(name))))
		defer span.End()

		start := time.Now()
		st.CurrentStep = string(name)

		if res := stage.Check(st); res.Failed() {
			r.finish(span, name, start, r.apply(st, name, res))
			return
		}

		var final domain.ProgressEvent
		for ev := range stage.Progress(ctx, st) {
			final = ev
			if !yield(ev) {
				return
			}
		}

		r.finish(span, name, start, r.apply(st, name, stage.Complete(st, final)))
	}
}

// Skip marks stage as skipped without running it.
func (r *Runner) Skip(st *domain.PipelineState, name domain.StageName, reason string) {
	st.Logs = append(st.Logs, string(name)+" skipped: "+reason)
	st.CurrentStep = string(name) + "_skipped"
	r.metrics.RecordStage(name, metrics.ResultSkipped, 0)
	r.logger.Info("stage skipped", slog.String("stage", string(name)), slog.String("reason", reason))
}

func (r *Runner) finish(span trace.Span, name domain.StageName, start time.Time, added []string) {
	elapsed := time.Since(start)
	result := metrics.ResultSuccess
	if len(added) > 0 {
		result = metrics.ResultError
		span.SetStatus(codes.Error, added[0])
		r.logger.Warn("stage failed",
			slog.String("stage", string(name)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", strings.Join(added, "; ")),
		)
	} else {
		r.logger.Info("stage completed",
			slog.String("stage", string(name)),
			slog.Duration("elapsed", elapsed),
		)
	}
	r.metrics.RecordStage(name, result, elapsed)
}

// apply merges res into st and returns the errors it appended. Errors win
// over outputs: a failed result writes no slot, and no slot is written once
// the state holds any error.
func (r *Runner) apply(st *domain.PipelineState, name domain.StageName, res domain.StageResult) []string {
	st.Logs = append(st.Logs, res.Logs...)

	if res.Failed() {
		st.Errors = append(st.Errors, res.Errors...)
		st.CurrentStep = string(name) + "_failed"
		return res.Errors
	}
	if st.Failed() {
		return nil
	}

	setOnce(r, name, &st.Requirements, res.Requirements)
	setOnce(r, name, &st.Architecture, res.Architecture)
	setOnce(r, name, &st.Terraform, res.Terraform)
	setOnce(r, name, &st.Deployment, res.Deployment)

	if res.DeploymentID != "" && st.DeploymentID == "" {
		st.DeploymentID = res.DeploymentID
	}
	if res.Region != "" {
		st.Region = res.Region
	}
	st.CurrentStep = string(name) + "_complete"
	return nil
}

func setOnce[T any](r *Runner, name domain.StageName, slot **T, v *T) {
	if v == nil {
		return
	}
	if *slot != nil {
		r.logger.Warn("ignoring overwrite of a completed output", slog.String("stage", string(name)))
		return
	}
	*slot = v
}
