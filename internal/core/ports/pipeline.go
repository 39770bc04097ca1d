// Package ports defines the capability interfaces the pipeline depends on.
// Implementations are constructed once at startup and shared across
// requests; none of them may hold per-request mutable state.
package ports

import (
	"context"
	"iter"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

// Completer produces structured data from a prompt.
type Completer interface {
	// GenerateStructured returns the JSON object contained in the model's
	// answer. Transport failures and answers without a parseable object are
	// reported as *domain.CompletionError.
	GenerateStructured(ctx context.Context, prompt string) (map[string]any, error)
}

// Provisioner drives the external infrastructure tool.
type Provisioner interface {
	// WriteWorkspace materializes files into the workspace for deploymentID
	// and returns its directory.
	WriteWorkspace(deploymentID string, files map[string]string) (string, error)

	// Execute runs one phase in dir and yields its output lines as they are
	// produced. A failed run yields a final non-nil error
	// (*domain.ExternalToolError) and stops.
	Execute(ctx context.Context, phase domain.ToolPhase, dir string) iter.Seq2[string, error]

	// FetchOutputs returns the structured outputs of a completed apply.
	FetchOutputs(ctx context.Context, dir string) (map[string]any, error)
}

// Inventory reads the resources that currently exist in the cloud project.
type Inventory interface {
	ListResources(ctx context.Context) (*domain.InventorySnapshot, error)
}

// CostEstimator prices a planned resource per month.
type CostEstimator interface {
	MonthlyCost(resourceType string, config map[string]any) float64
}
