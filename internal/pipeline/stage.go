package pipeline

import (
	"context"
	"iter"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

// Stage produces one output slot of the pipeline state.
type Stage interface {
	Name() domain.StageName
	Execute(ctx context.Context, st *domain.PipelineState) domain.StageResult
}

// StreamingStage reports progress while it runs. It is checked first, then
// driven through Progress until the terminal event, which Complete turns
// into the stage result.
type StreamingStage interface {
	Name() domain.StageName
	Check(st *domain.PipelineState) domain.StageResult
	Progress(ctx context.Context, st *domain.PipelineState) iter.Seq[domain.ProgressEvent]
	Complete(st *domain.PipelineState, final domain.ProgressEvent) domain.StageResult
}
