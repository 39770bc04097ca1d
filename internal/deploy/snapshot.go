package deploy

import (
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

const (
	managedBy          = "vibe-devops"
	defaultStackName   = "Deployed Application"
	defaultServiceName = "Unknown Resource"
)

// SnapshotContext is the request-level data the snapshot is derived from.
type SnapshotContext struct {
	DeploymentID string
	ProjectID    string
	Region       string
	RefreshedAt  time.Time
}

// BuildSnapshot derives the live architecture view of a finished deployment
// from its plan and outputs. It performs no I/O. Every service is reported
// as running and healthy; there is no post-deploy health check.
func BuildSnapshot(plan *domain.ArchitecturePlan, outputs map[string]any, sc SnapshotContext) *domain.ArchitectureSnapshot {
	if plan == nil {
		plan = &domain.ArchitecturePlan{}
	}

	labels := func() map[string]string {
		return map[string]string{"deployment_id": sc.DeploymentID, "managed_by": managedBy}
	}

	services := make([]domain.Service, 0, len(plan.Resources))
	var total float64
	for _, res := range plan.Resources {
		services = append(services, buildService(res, sc, labels()))
		total += res.EstimatedMonthlyCost
	}
	total = roundCents(total)

	primary := ""
	if len(services) > 0 {
		primary = services[0].ID
	}

	stackName := plan.Name
	if stackName == "" {
		stackName = defaultStackName
	}
	stackLabels := labels()
	stackLabels["environment"] = "production"

	stack := domain.ApplicationStack{
		ID:             sc.DeploymentID,
		Name:           stackName,
		Description:    "Application deployed by Vibe DevOps",
		Services:       services,
		PrimaryService: primary,
		Labels:         stackLabels,
		TotalCost:      total,
		HealthStatus:   "healthy",
		VPC:            plan.Networking.VPC,
		Subnets:        plan.Networking.Subnets,
	}

	var outs map[string]any
	if len(outputs) > 0 {
		outs = maps.Clone(outputs)
	}

	return &domain.ArchitectureSnapshot{
		ID:                sc.DeploymentID,
		Name:              "GCP Architecture - " + sc.DeploymentID,
		Description:       "Live GCP architecture deployed by Vibe DevOps",
		ProjectID:         sc.ProjectID,
		ApplicationStacks: []domain.ApplicationStack{stack},
		Connections:       []domain.Connection{},
		TotalCost:         total,
		CostBreakdown:     map[string]float64{stackName: total},
		Outputs:           outs,
		LastRefresh:       sc.RefreshedAt,
		HasGCPAccess:      true,
	}
}

func buildService(res domain.PlannedResource, sc SnapshotContext, labels map[string]string) domain.Service {
	idName := res.Name
	if idName == "" {
		idName = "resource"
	}
	name := res.Name
	if name == "" {
		name = defaultServiceName
	}
	region := res.Region
	if region == "" {
		region = sc.Region
	}
	config := res.Config
	if config == nil {
		config = map[string]any{}
	}

	return domain.Service{
		ID:            idName + "-" + shortID(sc.DeploymentID),
		Name:          name,
		Type:          res.Type,
		Status:        "running",
		Region:        region,
		ProjectID:     sc.ProjectID,
		Description:   fmt.Sprintf("Deployed %s resource", res.Type),
		Configuration: config,
		CostEstimate: domain.CostEstimate{
			Monthly:   res.EstimatedMonthlyCost,
			Breakdown: res.Type + " monthly cost",
			Currency:  "USD",
		},
		HealthStatus: "healthy",
		Labels:       labels,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
