package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/agents"
	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/deploy"
	"github.com/KaranKendre11/VibeOPS/internal/pricing"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// funcStage adapts a function to Stage.
type funcStage struct {
	name domain.StageName
	fn   func(ctx context.Context, st *domain.PipelineState) domain.StageResult
}

func (s funcStage) Name() domain.StageName { return s.name }

func (s funcStage) Execute(ctx context.Context, st *domain.PipelineState) domain.StageResult {
	return s.fn(ctx, st)
}

type reply struct {
	out map[string]any
	err error
}

// scriptedCompleter answers prompts in order.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

func (c *scriptedCompleter) GenerateStructured(context.Context, string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.replies) {
		return nil, &domain.CompletionError{Message: "no scripted reply"}
	}
	r := c.replies[c.calls]
	c.calls++
	return r.out, r.err
}

// scriptedProvisioner emits fixed lines per phase and optionally fails a
// phase after its lines.
type scriptedProvisioner struct {
	mu       sync.Mutex
	lines    map[domain.ToolPhase][]string
	fail     map[domain.ToolPhase]error
	outputs  map[string]any
	executed []domain.ToolPhase
	written  map[string]map[string]string
}

func (p *scriptedProvisioner) WriteWorkspace(id string, files map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.written == nil {
		p.written = map[string]map[string]string{}
	}
	p.written[id] = files
	return "/work/" + id, nil
}

func (p *scriptedProvisioner) Execute(_ context.Context, phase domain.ToolPhase, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		p.mu.Lock()
		p.executed = append(p.executed, phase)
		p.mu.Unlock()
		for _, line := range p.lines[phase] {
			if !yield(line, nil) {
				return
			}
		}
		if err := p.fail[phase]; err != nil {
			yield("", err)
		}
	}
}

func (p *scriptedProvisioner) FetchOutputs(context.Context, string) (map[string]any, error) {
	if p.outputs == nil {
		return nil, errors.New("no outputs")
	}
	return p.outputs, nil
}

func requirementsReply() reply {
	return reply{out: map[string]any{
		"summary":         "A web app backed by a relational database",
		"services_needed": []any{"cloud-run", "cloud-sql"},
	}}
}

func architectureReply() reply {
	return reply{out: map[string]any{
		"name":        "webapp",
		"explanation": "Cloud Run in front of Cloud SQL",
		"resources": []any{
			map[string]any{"type": "cloud-run", "name": "api", "config": map[string]any{"cpu": "1", "memory": "512Mi"}},
			map[string]any{"type": "cloud-sql", "name": "db", "config": map[string]any{"tier": "db-f1-micro"}},
		},
		"networking": map[string]any{"vpc": "webapp-vpc"},
	}}
}

func iacReply() reply {
	return reply{out: map[string]any{
		"files": map[string]any{
			"main.tf":      "resource \"google_cloud_run_service\" \"api\" {\n  name = \"api\"\n}\n",
			"variables.tf": "variable \"project_id\" {}\n",
		},
	}}
}

type harness struct {
	completer   *scriptedCompleter
	provisioner *scriptedProvisioner
	dryRun      bool
	retries     int
}

func newHarness(replies ...reply) *harness {
	return &harness{
		completer: &scriptedCompleter{replies: replies},
		provisioner: &scriptedProvisioner{
			lines: map[domain.ToolPhase][]string{
				domain.ToolInit:  {"Initializing provider plugins...", "Terraform has been successfully initialized!"},
				domain.ToolPlan:  {"Plan: 2 to add, 0 to change, 0 to destroy."},
				domain.ToolApply: {"google_cloud_run_service.api: Creating...", "google_cloud_run_service.api: Creation complete after 20s"},
			},
			outputs: map[string]any{
				"service_url": map[string]any{"value": "https://api-xyz.a.run.app", "sensitive": false},
				"db_password": map[string]any{"value": "secret", "sensitive": true},
			},
		},
	}
}

func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	agg := deploy.NewAggregator(h.provisioner, deploy.WithPhaseTimeout(5*time.Second))
	return New(Options{
		Requirements: agents.NewRequirements(h.completer, nil, nil),
		Architecture: agents.NewArchitecture(h.completer, pricing.NewCalculator(), nil),
		IaC:          agents.NewIaC(h.completer, h.provisioner, nil, agents.WithIDGenerator(func() string { return "deploy-test0001" })),
		Deployment:   agents.NewDeployment(agg, nil),
		Runner:       NewRunner(WithRetries(h.retries), WithBackOff(zeroBackOff)),
		ProjectID:    "demo-project",
		Region:       "us-central1",
		DryRun:       h.dryRun,
		Now:          func() time.Time { return fixedNow },
	})
}

func collectEvents(seq iter.Seq[domain.WireEvent]) []domain.WireEvent {
	var out []domain.WireEvent
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func statuses(events []domain.WireEvent, state domain.AgentState) []string {
	var out []string
	for _, ev := range events {
		if s, ok := ev.(*domain.AgentStatusEvent); ok && s.Status == state {
			out = append(out, s.AgentID)
		}
	}
	return out
}

func ofType(events []domain.WireEvent, typ domain.EventType) []domain.WireEvent {
	var out []domain.WireEvent
	for _, ev := range events {
		if ev.EventType() == typ {
			out = append(out, ev)
		}
	}
	return out
}
