package agents

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/deploy"
)

// Deployment applies the generated workspace and reports progress as it
// goes. Unlike the other agents it is driven in three steps: Check, then
// Progress until a terminal event, then Complete with that event.
type Deployment struct {
	aggregator *deploy.Aggregator
	logger     *slog.Logger
	now        func() time.Time
}

func NewDeployment(agg *deploy.Aggregator, logger *slog.Logger) *Deployment {
	return &Deployment{aggregator: agg, logger: orDiscard(logger), now: time.Now}
}

func (a *Deployment) Name() domain.StageName { return domain.StageDeployment }

// Check fails when the IaC stage left nothing to deploy.
func (a *Deployment) Check(st *domain.PipelineState) domain.StageResult {
	if st.DeploymentID == "" || st.Terraform == nil || st.Terraform.Workspace == "" {
		return domain.Failf("Missing deployment configuration")
	}
	return domain.StageResult{}
}

// Progress runs the provisioning phases in the deployment's workspace.
func (a *Deployment) Progress(ctx context.Context, st *domain.PipelineState) iter.Seq[domain.ProgressEvent] {
	return a.aggregator.Run(ctx, st.Terraform.Workspace)
}

// Complete turns the terminal progress event into the stage result. A done
// event yields the deployment result with its architecture snapshot.
func (a *Deployment) Complete(st *domain.PipelineState, final domain.ProgressEvent) domain.StageResult {
	switch final.Phase {
	case domain.PhaseDone:
	case domain.PhaseFailed:
		return fail(a.Name(), deploymentFailed, errors.New(final.Error))
	default:
		return fail(a.Name(), deploymentFailed, errors.New("provisioning ended without a terminal status"))
	}

	snapshot := deploy.BuildSnapshot(st.Architecture, final.Outputs, deploy.SnapshotContext{
		DeploymentID: st.DeploymentID,
		ProjectID:    st.ProjectID,
		Region:       st.Region,
		RefreshedAt:  a.now().UTC(),
	})

	a.logger.Info("deployment complete",
		slog.String("deployment_id", st.DeploymentID),
		slog.Int("resources_created", len(final.ResourcesCreated)),
		slog.Float64("monthly_cost", snapshot.TotalCost),
	)

	return domain.StageResult{
		Deployment: &domain.DeploymentResult{
			Status:           "completed",
			Outputs:          final.Outputs,
			ResourcesCreated: final.ResourcesCreated,
			Snapshot:         snapshot,
		},
		Logs: []string{"Deployment completed: " + st.DeploymentID},
	}
}
