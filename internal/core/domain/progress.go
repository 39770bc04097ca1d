package domain

// Phase is the deployment progress phase. The set is closed.
type Phase string

const (
	PhaseQueued       Phase = "queued"
	PhaseInitializing Phase = "initializing"
	PhasePlanning     Phase = "planning"
	PhaseExecuting    Phase = "executing"
	PhaseVerifying    Phase = "verifying"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether no further events follow this phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// ProgressEvent is one bounded status update of a deployment run.
//
// Percent never decreases within a run except on the failed event, which
// resets it to 0. Logs holds at most the last ten output lines.
// ResourcesCreated only grows.
type ProgressEvent struct {
	Phase            Phase          `json:"status"`
	Percent          float64        `json:"progress"`
	CurrentStep      string         `json:"current_step"`
	Logs             []string       `json:"logs"`
	ResourcesCreated []string       `json:"resources_created"`
	Error            string         `json:"error,omitempty"`
	Outputs          map[string]any `json:"outputs,omitempty"`
}

// ToolPhase is one invocation of the provisioning tool.
type ToolPhase string

const (
	ToolInit   ToolPhase = "init"
	ToolPlan   ToolPhase = "plan"
	ToolApply  ToolPhase = "apply"
	ToolVerify ToolPhase = "verify"
)

// ToolPhases is the fixed order the provisioning tool is driven in.
var ToolPhases = []ToolPhase{ToolInit, ToolPlan, ToolApply, ToolVerify}
