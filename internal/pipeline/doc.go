// Package pipeline runs a request through the fixed deployment pipeline and
// streams what happens as wire events.
//
// # Stages
//
// Stages run in a fixed order:
//   - requirements: extract structured requirements from the request
//   - architecture: design and price a GCP architecture
//   - iac-generation: generate Terraform and write the workspace
//   - deployment: run terraform, streaming progress
//
// Each stage returns a domain.StageResult delta. Only the Runner applies it
// to the shared domain.PipelineState: output slots are written once and
// never after an error has been recorded.
//
// # Events
//
// For every stage the Orchestrator emits agent_status(working), then either
// one error event (and stops) or a text summary and agent_status(completed).
// The deployment stage additionally emits one deployment_status event per
// progress update and, on success, an architecture event with the live
// snapshot.
package pipeline
