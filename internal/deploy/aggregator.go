// Package deploy turns the output of the provisioning tool into bounded
// progress events and derives the architecture snapshot of a finished
// deployment.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

// DefaultPhaseTimeout bounds a single tool phase when none is configured.
const DefaultPhaseTimeout = 15 * time.Minute

// lineIncrement is the percent gained per output line inside a band.
const lineIncrement = 0.1

// band is the fixed percent range of one tool phase.
type band struct {
	lo, hi float64
	phase  domain.Phase
	step   string
}

var bands = map[domain.ToolPhase]band{
	domain.ToolInit:   {lo: 0, hi: 30, phase: domain.PhaseInitializing, step: "Initializing Terraform..."},
	domain.ToolPlan:   {lo: 30, hi: 60, phase: domain.PhasePlanning, step: "Planning infrastructure changes..."},
	domain.ToolApply:  {lo: 60, hi: 95, phase: domain.PhaseExecuting, step: "Applying infrastructure changes..."},
	domain.ToolVerify: {lo: 95, hi: 100, phase: domain.PhaseVerifying, step: "Verifying deployed resources..."},
}

// percentAfter returns the band percent after n observed lines. It never
// exceeds 90% of the band so the next phase start stays ahead.
func (b band) percentAfter(n int) float64 {
	p := b.lo + float64(n)*lineIncrement
	if limit := b.lo + 0.9*(b.hi-b.lo); p > limit {
		return limit
	}
	return p
}

var createdPattern = regexp.MustCompile(`^\s*(\S+): (?:Creating\.\.\.|Creation complete)`)

// PhaseObserver is notified after every tool phase.
type PhaseObserver func(phase domain.ToolPhase, elapsed time.Duration, err error)

// Aggregator drives the provisioning tool through its phases.
type Aggregator struct {
	provisioner  ports.Provisioner
	phaseTimeout time.Duration
	logger       *slog.Logger
	observe      PhaseObserver
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPhaseTimeout sets the deadline applied to each phase.
func WithPhaseTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.phaseTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPhaseObserver registers a callback run after each phase.
func WithPhaseObserver(fn PhaseObserver) Option {
	return func(a *Aggregator) { a.observe = fn }
}

// NewAggregator creates an Aggregator for the given provisioner.
func NewAggregator(p ports.Provisioner, opts ...Option) *Aggregator {
	a := &Aggregator{
		provisioner:  p,
		phaseTimeout: DefaultPhaseTimeout,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// run holds the accumulated progress of one deployment.
type run struct {
	percent   float64
	window    *LogWindow
	resources []string
	seen      map[string]struct{}
}

func (r *run) event(phase domain.Phase, step string) domain.ProgressEvent {
	res := make([]string, len(r.resources))
	copy(res, r.resources)
	return domain.ProgressEvent{
		Phase:            phase,
		Percent:          r.percent,
		CurrentStep:      step,
		Logs:             r.window.Lines(),
		ResourcesCreated: res,
	}
}

func (r *run) observe(line string) {
	r.window.Push(line)
	if m := createdPattern.FindStringSubmatch(line); m != nil {
		if _, ok := r.seen[m[1]]; !ok {
			r.seen[m[1]] = struct{}{}
			r.resources = append(r.resources, m[1])
		}
	}
}

func (r *run) advance(p float64) {
	if p > r.percent {
		r.percent = min(p, 100)
	}
}

// Run executes init, plan, apply and verify in dir and yields progress
// events. The sequence ends with exactly one terminal event: done with the
// tool's non-sensitive outputs, or failed with percent 0 and the error.
// Phases after a failure are not attempted.
func (a *Aggregator) Run(ctx context.Context, dir string) iter.Seq[domain.ProgressEvent] {
	return func(yield func(domain.ProgressEvent) bool) {
		r := &run{window: NewLogWindow(LogWindowSize), seen: map[string]struct{}{}}

		fail := func(err error) {
			ev := r.event(domain.PhaseFailed, "Deployment failed")
			ev.Percent = 0
			ev.Error = err.Error()
			yield(ev)
		}

		if !yield(r.event(domain.PhaseQueued, "Preparing deployment...")) {
			return
		}

		for _, phase := range domain.ToolPhases {
			b := bands[phase]
			r.advance(b.lo)
			if !yield(r.event(b.phase, b.step)) {
				return
			}

			stopped, err := a.runPhase(ctx, phase, dir, b, r, yield)
			if stopped {
				return
			}
			if err != nil {
				fail(err)
				return
			}
		}

		outputs, err := a.fetchOutputs(ctx, dir)
		if err != nil {
			fail(err)
			return
		}

		r.percent = 100
		done := r.event(domain.PhaseDone, "Deployment complete")
		done.Outputs = outputs
		yield(done)
	}
}

// runPhase streams one phase. stopped reports that the consumer quit.
func (a *Aggregator) runPhase(ctx context.Context, phase domain.ToolPhase, dir string, b band, r *run, yield func(domain.ProgressEvent) bool) (stopped bool, err error) {
	ctx, span := otel.Tracer("vibeops/deploy").Start(ctx, "terraform."+string(phase))
	span.SetAttributes(attribute.String("workspace", dir))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.phaseTimeout)
	defer cancel()

	start := time.Now()
	lines := 0
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("lines", lines))
		if a.observe != nil && !stopped {
			a.observe(phase, time.Since(start), err)
		}
		a.logger.Info("terraform phase finished",
			slog.String("phase", string(phase)),
			slog.Int("lines", lines),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
	}()

	for line, lineErr := range a.provisioner.Execute(ctx, phase, dir) {
		if lineErr != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !domain.IsExternalToolError(lineErr) {
				lineErr = &domain.ExternalToolError{Tool: "terraform", Phase: string(phase), Err: fmt.Errorf("deadline of %s exceeded: %w", a.phaseTimeout, lineErr)}
			}
			return false, lineErr
		}
		lines++
		r.observe(line)
		r.advance(b.percentAfter(lines))
		if !yield(r.event(b.phase, b.step)) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Aggregator) fetchOutputs(ctx context.Context, dir string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.phaseTimeout)
	defer cancel()

	raw, err := a.provisioner.FetchOutputs(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outputs: %w", err)
	}
	return PublicOutputs(raw), nil
}

// PublicOutputs flattens `terraform output -json` style values and drops
// outputs marked sensitive. Plain values are passed through.
func PublicOutputs(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			out[name] = v
			continue
		}
		value, hasValue := m["value"]
		if !hasValue {
			out[name] = v
			continue
		}
		if sensitive, _ := m["sensitive"].(bool); sensitive {
			continue
		}
		out[name] = value
	}
	return out
}
