// Package domain holds the types threaded through the deployment pipeline:
// the per-request state, typed stage outputs, progress events and the wire
// events streamed to clients.
package domain

import "fmt"

// StageName identifies one of the fixed pipeline stages.
type StageName string

const (
	StageRequirements  StageName = "requirements"
	StageArchitecture  StageName = "architecture"
	StageIaCGeneration StageName = "iac-generation"
	StageDeployment    StageName = "deployment"
)

// Stages is the fixed execution order.
var Stages = []StageName{
	StageRequirements,
	StageArchitecture,
	StageIaCGeneration,
	StageDeployment,
}

// AgentID is the identifier reported in agent_status events.
func (s StageName) AgentID() string {
	switch s {
	case StageRequirements:
		return "requirements-analysis"
	case StageArchitecture:
		return "cloud-architecture"
	default:
		return string(s)
	}
}

// AgentName is the human readable name reported in agent_status events.
func (s StageName) AgentName() string {
	switch s {
	case StageRequirements:
		return "Requirements Analysis Agent"
	case StageArchitecture:
		return "Cloud Architecture Agent"
	case StageIaCGeneration:
		return "IaC Generation Agent"
	case StageDeployment:
		return "Deployment Agent"
	default:
		return string(s)
	}
}

// Turn is one prior conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PipelineState is the record threaded through every stage of a single run.
//
// Output slots are nil until their stage completes and are written at most
// once. Errors and Logs are only appended by the pipeline itself; stages
// report their contributions through a StageResult.
type PipelineState struct {
	Input   string
	History []Turn

	Requirements *Requirements
	Architecture *ArchitecturePlan
	Terraform    *TerraformConfig
	Deployment   *DeploymentResult

	Errors      []string
	Logs        []string
	CurrentStep string

	ProjectID    string
	Region       string
	DeploymentID string
}

// NewPipelineState creates the state for one request. The history slice is
// copied so callers cannot mutate it mid-run.
func NewPipelineState(input string, history []Turn, projectID, region string) *PipelineState {
	h := make([]Turn, len(history))
	copy(h, history)
	return &PipelineState{
		Input:     input,
		History:   h,
		ProjectID: projectID,
		Region:    region,
	}
}

// Failed reports whether any error has been recorded.
func (s *PipelineState) Failed() bool {
	return len(s.Errors) > 0
}

// StageResult is the delta produced by one stage execution. A stage either
// fills exactly one output field or reports errors; when Errors is non-empty
// every output field is ignored.
type StageResult struct {
	Requirements *Requirements
	Architecture *ArchitecturePlan
	Terraform    *TerraformConfig
	Deployment   *DeploymentResult

	// DeploymentID and Region are optional state updates carried with an output.
	DeploymentID string
	Region       string

	Errors []string
	Logs   []string
}

// Failf returns a result carrying a single formatted error.
func Failf(format string, args ...any) StageResult {
	return StageResult{Errors: []string{fmt.Sprintf(format, args...)}}
}

// Failed reports whether the result carries errors.
func (r StageResult) Failed() bool {
	return len(r.Errors) > 0
}
