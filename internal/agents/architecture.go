package agents

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

var dataServices = map[string]bool{
	"cloud-sql":   true,
	"memorystore": true,
	"firestore":   true,
}

// Architecture designs a plan from the requirements and prices it.
type Architecture struct {
	completer ports.Completer
	costs     ports.CostEstimator
	logger    *slog.Logger
}

func NewArchitecture(c ports.Completer, costs ports.CostEstimator, logger *slog.Logger) *Architecture {
	return &Architecture{completer: c, costs: costs, logger: orDiscard(logger)}
}

func (a *Architecture) Name() domain.StageName { return domain.StageArchitecture }

func (a *Architecture) Execute(ctx context.Context, st *domain.PipelineState) domain.StageResult {
	if st.Requirements == nil {
		return domain.Failf("No requirements found for architecture design")
	}

	prompt, err := render(architecturePrompt, struct {
		Requirements string
		Region       string
	}{indentJSON(st.Requirements.Raw, st.Requirements), st.Region})
	if err != nil {
		return fail(a.Name(), architectureFailed, err)
	}

	m, err := a.completer.GenerateStructured(ctx, prompt)
	if err != nil {
		return fail(a.Name(), architectureFailed, err)
	}
	plan, err := domain.DecodeArchitecturePlan(m)
	if err != nil {
		return fail(a.Name(), architectureFailed, err)
	}
	if plan.Region == "" {
		plan.Region = st.Region
	}
	a.price(plan)

	logs := []string{fmt.Sprintf("Architecture designed: %d resources in %s", len(plan.Resources), plan.Region)}
	for _, w := range ValidatePlan(plan) {
		a.logger.Warn("architecture warning", slog.String("warning", w))
		logs = append(logs, "Warning: "+w)
	}

	return domain.StageResult{Architecture: plan, Region: plan.Region, Logs: logs}
}

// price replaces the model's cost guesses with the calculator's.
func (a *Architecture) price(plan *domain.ArchitecturePlan) {
	if a.costs == nil {
		return
	}
	var total float64
	for i := range plan.Resources {
		r := &plan.Resources[i]
		r.EstimatedMonthlyCost = a.costs.MonthlyCost(r.Type, r.Config)
		total += r.EstimatedMonthlyCost
	}
	plan.EstimatedCost = math.Round(total*100) / 100
}

// ValidatePlan returns best-practice warnings for plan. Warnings never fail
// the stage.
func ValidatePlan(plan *domain.ArchitecturePlan) []string {
	var warnings []string
	if len(plan.Resources) == 0 {
		warnings = append(warnings, "No resources defined in architecture")
	}
	if plan.Region == "" {
		warnings = append(warnings, "No region specified")
	}

	hasData, hasVPC := false, plan.Networking.VPC != ""
	for _, r := range plan.Resources {
		if dataServices[r.Type] {
			hasData = true
		}
		if r.Type == "vpc" {
			hasVPC = true
		}
	}
	if hasData && !hasVPC {
		warnings = append(warnings, "Database services should be deployed in VPC for security")
	}

	for _, r := range plan.Resources {
		if r.Type != "compute-engine" {
			continue
		}
		if ip, _ := r.Config["external_ip"].(bool); ip {
			warnings = append(warnings, fmt.Sprintf("Resource %s has external IP - ensure firewall rules are restrictive", r.Name))
		}
	}
	return warnings
}
