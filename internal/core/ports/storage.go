package ports

import (
	"context"
	"errors"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

// ListOptions controls pagination of list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// RunStore persists pipeline runs and their wire events for later replay.
type RunStore interface {
	// CreateRun records the start of a run.
	CreateRun(ctx context.Context, run *domain.Run) error

	// AppendEvent adds one event to a run. Events keep their insertion order.
	AppendEvent(ctx context.Context, ev *domain.RecordedEvent) error

	// FinishRun sets the final status of a run.
	FinishRun(ctx context.Context, id string, status domain.RunStatus, deploymentID, errMsg string) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns lists runs, newest first.
	ListRuns(ctx context.Context, opts ListOptions) ([]*domain.Run, error)

	// ListEvents returns the events of a run in order.
	ListEvents(ctx context.Context, runID string) ([]*domain.RecordedEvent, error)

	// Close closes the storage connection.
	Close() error
}

// ErrNotFound is returned by stores when a run does not exist.
var ErrNotFound = errors.New("not found")
