package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/stream"
)

func TestOrchestrator_Success(t *testing.T) {
	h := newHarness(requirementsReply(), architectureReply(), iacReply())
	events := collectEvents(h.orchestrator(t).Run(context.Background(), "build a web app with a database", nil))

	if errs := ofType(events, domain.EventError); len(errs) != 0 {
		t.Fatalf("unexpected error events: %+v", errs)
	}

	wantCompleted := []string{"requirements-analysis", "cloud-architecture", "iac-generation", "deployment"}
	if got := statuses(events, domain.AgentCompleted); !slices.Equal(got, wantCompleted) {
		t.Errorf("completed = %v, want %v", got, wantCompleted)
	}
	if got := statuses(events, domain.AgentWorking); !slices.Equal(got, wantCompleted) {
		t.Errorf("working = %v, want %v", got, wantCompleted)
	}

	progress := ofType(events, domain.EventDeploymentStatus)
	if len(progress) == 0 {
		t.Fatal("no deployment_status events")
	}
	prev := -1.0
	for _, ev := range progress {
		p := ev.(*domain.DeploymentStatusEvent).Data.Percent
		if p < prev || p > 100 {
			t.Fatalf("percent %v after %v", p, prev)
		}
		prev = p
	}
	last := progress[len(progress)-1].(*domain.DeploymentStatusEvent).Data
	if last.Phase != domain.PhaseDone || last.Percent != 100 {
		t.Errorf("last progress = %s/%v, want done/100", last.Phase, last.Percent)
	}
	if _, ok := last.Outputs["db_password"]; ok {
		t.Error("sensitive output leaked")
	}

	arch := ofType(events, domain.EventArchitecture)
	if len(arch) != 1 {
		t.Fatalf("architecture events = %d, want 1", len(arch))
	}
	snap := arch[0].(*domain.ArchitectureEvent).Data
	if snap == nil || len(snap.ApplicationStacks) != 1 || len(snap.ApplicationStacks[0].Services) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// The artifact follows the terminal progress event and precedes the
	// final completed status.
	idx := slices.Index(events, arch[0])
	if idx < slices.Index(events, progress[len(progress)-1]) {
		t.Error("architecture event before terminal progress")
	}
	final, ok := events[len(events)-1].(*domain.AgentStatusEvent)
	if !ok || final.AgentID != "deployment" || final.Status != domain.AgentCompleted {
		t.Errorf("last event = %+v", events[len(events)-1])
	}

	if len(ofType(events, domain.EventText)) != 5 {
		t.Errorf("text events = %d, want 5", len(ofType(events, domain.EventText)))
	}
	if got := h.provisioner.executed; !slices.Equal(got, domain.ToolPhases) {
		t.Errorf("executed phases = %v", got)
	}
	if _, ok := h.provisioner.written["deploy-test0001"]["provider.tf"]; !ok {
		t.Error("provider.tf not written")
	}
}

func TestOrchestrator_TextSummaries(t *testing.T) {
	h := newHarness(requirementsReply(), architectureReply(), iacReply())
	events := collectEvents(h.orchestrator(t).Run(context.Background(), "build a web app with a database", nil))

	var texts []string
	for _, ev := range ofType(events, domain.EventText) {
		texts = append(texts, ev.(*domain.TextEvent).Content)
	}
	if len(texts) < 3 {
		t.Fatalf("texts = %q", texts)
	}
	if !strings.Contains(texts[0], "A web app backed by a relational database") {
		t.Errorf("requirements summary = %q", texts[0])
	}
	if !strings.Contains(texts[1], "**Estimated Monthly Cost:** $") {
		t.Errorf("architecture summary = %q", texts[1])
	}
	if !strings.Contains(texts[2], "`deploy-test0001`") || !strings.Contains(texts[2], "Generated 3 Terraform files") {
		t.Errorf("terraform summary = %q", texts[2])
	}
}

func TestOrchestrator_EmptyPlanDeploys(t *testing.T) {
	empty := reply{out: map[string]any{"explanation": "nothing to provision", "resources": []any{}}}
	h := newHarness(requirementsReply(), empty, iacReply())
	events := collectEvents(h.orchestrator(t).Run(context.Background(), "just a placeholder project", nil))

	if errs := ofType(events, domain.EventError); len(errs) != 0 {
		t.Fatalf("unexpected error events: %+v", errs)
	}
	arch := ofType(events, domain.EventArchitecture)
	if len(arch) != 1 {
		t.Fatalf("architecture events = %d, want 1", len(arch))
	}
	snap := arch[0].(*domain.ArchitectureEvent).Data
	if snap.TotalCost != 0 {
		t.Errorf("total cost = %v, want 0", snap.TotalCost)
	}
	stack := snap.ApplicationStacks[0]
	if len(stack.Services) != 0 || stack.PrimaryService != "" {
		t.Errorf("stack = %+v", stack)
	}
	final, ok := events[len(events)-1].(*domain.AgentStatusEvent)
	if !ok || final.AgentID != "deployment" || final.Status != domain.AgentCompleted {
		t.Errorf("last event = %+v", events[len(events)-1])
	}
}

func TestOrchestrator_ArchitectureFailure(t *testing.T) {
	h := newHarness(requirementsReply(), reply{err: &domain.CompletionError{Provider: "openai", Message: "completion request failed"}})
	events := collectEvents(h.orchestrator(t).Run(context.Background(), "build a web app with a database", nil))

	want := []struct {
		typ    domain.EventType
		agent  string
		status domain.AgentState
	}{
		{domain.EventAgentStatus, "requirements-analysis", domain.AgentWorking},
		{domain.EventText, "", ""},
		{domain.EventAgentStatus, "requirements-analysis", domain.AgentCompleted},
		{domain.EventAgentStatus, "cloud-architecture", domain.AgentWorking},
		{domain.EventError, "", ""},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, w := range want {
		if events[i].EventType() != w.typ {
			t.Fatalf("event %d type = %s, want %s", i, events[i].EventType(), w.typ)
		}
		if s, ok := events[i].(*domain.AgentStatusEvent); ok {
			if s.AgentID != w.agent || s.Status != w.status {
				t.Errorf("event %d = %s/%s, want %s/%s", i, s.AgentID, s.Status, w.agent, w.status)
			}
		}
	}
	msg := events[4].(*domain.ErrorEvent).Message
	if !strings.HasPrefix(msg, "Architecture design failed") {
		t.Errorf("error message = %q", msg)
	}
	if len(h.provisioner.executed) != 0 {
		t.Errorf("provisioner ran: %v", h.provisioner.executed)
	}
}

func TestOrchestrator_ApplyFailureAfterFiveLines(t *testing.T) {
	h := newHarness(requirementsReply(), architectureReply(), iacReply())
	applyLines := []string{"apply 1", "apply 2", "apply 3", "apply 4", "apply 5"}
	h.provisioner.lines[domain.ToolApply] = applyLines
	h.provisioner.fail = map[domain.ToolPhase]error{
		domain.ToolApply: &domain.ExternalToolError{Tool: "terraform", Phase: "apply", ExitCode: 1, Err: errors.New("Error creating Service: googleapi: Error 403")},
	}

	events := collectEvents(h.orchestrator(t).Run(context.Background(), "build a web app with a database", nil))

	progress := ofType(events, domain.EventDeploymentStatus)
	if len(progress) < 2 {
		t.Fatalf("progress events = %d", len(progress))
	}
	failed := progress[len(progress)-1].(*domain.DeploymentStatusEvent).Data
	if failed.Phase != domain.PhaseFailed || failed.Percent != 0 {
		t.Errorf("terminal progress = %s/%v, want failed/0", failed.Phase, failed.Percent)
	}
	before := progress[len(progress)-2].(*domain.DeploymentStatusEvent).Data
	if len(before.Logs) > 10 {
		t.Errorf("window = %d lines", len(before.Logs))
	}
	tail := before.Logs[len(before.Logs)-len(applyLines):]
	if !slices.Equal(tail, applyLines) {
		t.Errorf("preceding window tail = %v, want %v", tail, applyLines)
	}

	errs := ofType(events, domain.EventError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if msg := errs[0].(*domain.ErrorEvent).Message; !strings.HasPrefix(msg, "Deployment failed") {
		t.Errorf("error message = %q", msg)
	}
	if events[len(events)-1] != errs[0] {
		t.Error("error is not the last event")
	}
	if len(ofType(events, domain.EventArchitecture)) != 0 {
		t.Error("architecture emitted after failure")
	}
	if slices.Contains(h.provisioner.executed, domain.ToolVerify) {
		t.Error("verify ran after apply failure")
	}
}

func TestOrchestrator_NoEventsAfterStageError(t *testing.T) {
	failing := []domain.StageName{domain.StageRequirements, domain.StageArchitecture, domain.StageIaCGeneration}
	for k, name := range failing {
		t.Run(string(name), func(t *testing.T) {
			replies := []reply{requirementsReply(), architectureReply(), iacReply()}
			replies[k] = reply{err: &domain.CompletionError{Message: "boom"}}
			h := newHarness(replies...)

			events := collectEvents(h.orchestrator(t).Run(context.Background(), "input", nil))

			errs := ofType(events, domain.EventError)
			if len(errs) != 1 || events[len(events)-1] != errs[0] {
				t.Fatalf("want exactly one trailing error, got %+v", events)
			}
			for _, later := range domain.Stages[k+1:] {
				for _, ev := range events {
					if s, ok := ev.(*domain.AgentStatusEvent); ok && s.AgentID == later.AgentID() {
						t.Errorf("event for later stage %s", later)
					}
				}
			}
			if len(ofType(events, domain.EventDeploymentStatus)) != 0 {
				t.Error("deployment ran")
			}
		})
	}
}

func TestOrchestrator_ErrorTakesPrecedenceOverOutput(t *testing.T) {
	h := newHarness(architectureReply(), iacReply())
	o := h.orchestrator(t)
	o.steps[0].stage = funcStage{name: domain.StageRequirements, fn: func(context.Context, *domain.PipelineState) domain.StageResult {
		return domain.StageResult{
			Requirements: &domain.Requirements{Summary: "partial"},
			Errors:       []string{"Requirements analysis failed: truncated answer"},
		}
	}}

	events := collectEvents(o.Run(context.Background(), "input", nil))
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if msg := events[1].(*domain.ErrorEvent).Message; msg != "Requirements analysis failed: truncated answer" {
		t.Errorf("message = %q", msg)
	}
	if h.completer.calls != 0 {
		t.Errorf("completer called %d times", h.completer.calls)
	}
}

func TestOrchestrator_PanicBecomesErrorEvent(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)
	o.steps[0].stage = funcStage{name: domain.StageRequirements, fn: func(context.Context, *domain.PipelineState) domain.StageResult {
		panic("boom")
	}}

	events := collectEvents(o.Run(context.Background(), "input", nil))
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	ev, ok := events[1].(*domain.ErrorEvent)
	if !ok || ev.Message != "Orchestration error: boom" {
		t.Errorf("last event = %+v", events[1])
	}
}

func TestOrchestrator_ConsumerPanicPropagates(t *testing.T) {
	h := newHarness(requirementsReply())
	seq := h.orchestrator(t).Run(context.Background(), "input", nil)

	defer func() {
		if r := recover(); r != "consumer" {
			t.Errorf("recovered %v, want consumer panic", r)
		}
	}()
	for range seq {
		panic("consumer")
	}
}

func TestOrchestrator_NotRestartable(t *testing.T) {
	h := newHarness(requirementsReply(), architectureReply(), iacReply())
	seq := h.orchestrator(t).Run(context.Background(), "input", nil)

	first := collectEvents(seq)
	if len(first) == 0 {
		t.Fatal("first iteration produced nothing")
	}
	second := collectEvents(seq)
	if len(second) != 1 || second[0].EventType() != domain.EventError {
		t.Errorf("second iteration = %+v, want one error", second)
	}
	if h.completer.calls != 3 {
		t.Errorf("completer calls = %d, want 3", h.completer.calls)
	}
}

func TestOrchestrator_ConsumerStopsEarly(t *testing.T) {
	h := newHarness(requirementsReply(), architectureReply(), iacReply())
	for ev := range h.orchestrator(t).Run(context.Background(), "input", nil) {
		if ev.EventType() != domain.EventAgentStatus {
			t.Fatalf("first event = %s", ev.EventType())
		}
		break
	}
	if h.completer.calls != 0 {
		t.Errorf("completer calls = %d after early stop", h.completer.calls)
	}
}

func TestOrchestrator_DryRun(t *testing.T) {
	h := newHarness(requirementsReply(), architectureReply(), iacReply())
	h.dryRun = true

	events := collectEvents(h.orchestrator(t).Run(context.Background(), "input", nil))

	if len(ofType(events, domain.EventDeploymentStatus)) != 0 {
		t.Error("deployment_status emitted in dry run")
	}
	if len(ofType(events, domain.EventError)) != 0 {
		t.Errorf("unexpected errors: %+v", ofType(events, domain.EventError))
	}
	if len(h.provisioner.executed) != 0 {
		t.Errorf("provisioner ran: %v", h.provisioner.executed)
	}
	if got := statuses(events, domain.AgentCompleted); len(got) != 4 {
		t.Errorf("completed = %v", got)
	}
}

func TestOrchestrator_FramedStreamEndsWithDone(t *testing.T) {
	tests := []struct {
		name    string
		replies []reply
	}{
		{"success", []reply{requirementsReply(), architectureReply(), iacReply()}},
		{"failure", []reply{requirementsReply(), {err: errors.New("down")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.replies...)
			var frames []string
			for f := range stream.Frames(h.orchestrator(t).Run(context.Background(), "input", nil)) {
				frames = append(frames, string(f))
			}
			if len(frames) < 2 {
				t.Fatalf("frames = %q", frames)
			}
			if frames[len(frames)-1] != "data: [DONE]\n\n" {
				t.Errorf("last frame = %q", frames[len(frames)-1])
			}
			for _, f := range frames[:len(frames)-1] {
				if !strings.HasPrefix(f, "data: {") || !strings.Contains(f, `"timestamp"`) {
					t.Errorf("frame = %q", f)
				}
			}
		})
	}
}
