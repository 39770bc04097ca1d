package domain

import (
	"encoding/json"
	"fmt"
)

// Requirements is the requirements stage output. Only Summary is read by
// the pipeline; everything else the model returns stays in Raw and feeds the
// architecture prompt as is.
type Requirements struct {
	Summary        string         `json:"summary"`
	ServicesNeeded []string       `json:"services_needed,omitempty"`
	Raw            map[string]any `json:"-"`
}

// ArchitecturePlan is the architecture stage output. IAM roles, firewall
// rules, deployment order and similar fields are only carried in Raw.
type ArchitecturePlan struct {
	Name          string            `json:"name,omitempty"`
	Region        string            `json:"region,omitempty"`
	Explanation   string            `json:"explanation,omitempty"`
	EstimatedCost float64           `json:"estimated_cost"`
	Resources     []PlannedResource `json:"resources"`
	Networking    Networking        `json:"networking"`
	Raw           map[string]any    `json:"-"`
}

// PlannedResource is one cloud resource in an architecture plan.
type PlannedResource struct {
	Type                 string         `json:"type"`
	Name                 string         `json:"name"`
	Region               string         `json:"region,omitempty"`
	Config               map[string]any `json:"config,omitempty"`
	EstimatedMonthlyCost float64        `json:"estimated_monthly_cost"`
}

// Networking is the part of a plan's network layout shown in snapshots.
type Networking struct {
	VPC     string   `json:"vpc,omitempty"`
	Subnets []string `json:"subnets,omitempty"`
}

// TerraformConfig is the IaC generation stage output.
type TerraformConfig struct {
	DeploymentID string            `json:"deployment_id,omitempty"`
	Files        map[string]string `json:"files"`
	Summary      string            `json:"summary,omitempty"`
	// Workspace is the directory the files were written to.
	Workspace string         `json:"-"`
	Raw       map[string]any `json:"-"`
}

// DeploymentResult is the deployment stage output.
type DeploymentResult struct {
	Status           string                `json:"status"`
	Outputs          map[string]any        `json:"outputs,omitempty"`
	ResourcesCreated []string              `json:"resources_created,omitempty"`
	Snapshot         *ArchitectureSnapshot `json:"architecture,omitempty"`
}

// DecodeRequirements converts a structured completion into Requirements.
// Only summary must have the expected shape.
func DecodeRequirements(m map[string]any) (*Requirements, error) {
	r := Requirements{Raw: m}
	if err := decodeField(m, "summary", &r.Summary); err != nil {
		return nil, err
	}
	r.ServicesNeeded = stringList(m["services_needed"])
	return &r, nil
}

// resourceFields is the routed subset of one planned resource.
type resourceFields struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Region string         `json:"region"`
	Config map[string]any `json:"config"`
}

// DecodeArchitecturePlan converts a structured completion into an
// ArchitecturePlan. Name, region, explanation and the resources' type, name,
// region and config are decoded strictly; costs and networking are read
// when they are usable and ignored otherwise.
func DecodeArchitecturePlan(m map[string]any) (*ArchitecturePlan, error) {
	p := ArchitecturePlan{Raw: m}
	for key, dst := range map[string]*string{
		"name":        &p.Name,
		"region":      &p.Region,
		"explanation": &p.Explanation,
	} {
		if err := decodeField(m, key, dst); err != nil {
			return nil, err
		}
	}

	var resources []resourceFields
	if err := decodeField(m, "resources", &resources); err != nil {
		return nil, err
	}
	items, _ := m["resources"].([]any)
	for i, rf := range resources {
		res := PlannedResource{Type: rf.Type, Name: rf.Name, Region: rf.Region, Config: rf.Config}
		if i < len(items) {
			if obj, ok := items[i].(map[string]any); ok {
				res.EstimatedMonthlyCost = number(obj["estimated_monthly_cost"])
			}
		}
		p.Resources = append(p.Resources, res)
	}

	p.EstimatedCost = number(m["estimated_cost"])
	if net, ok := m["networking"].(map[string]any); ok {
		p.Networking.VPC, _ = net["vpc"].(string)
		p.Networking.Subnets = stringList(net["subnets"])
	}
	return &p, nil
}

// DecodeTerraformConfig converts a structured completion into a TerraformConfig.
func DecodeTerraformConfig(m map[string]any) (*TerraformConfig, error) {
	c := TerraformConfig{Raw: m}
	if err := decodeField(m, "deployment_id", &c.DeploymentID); err != nil {
		return nil, err
	}
	if err := decodeField(m, "files", &c.Files); err != nil {
		return nil, err
	}
	if c.Files == nil {
		c.Files = map[string]string{}
	}
	c.Summary, _ = m["summary"].(string)
	return &c, nil
}

// decodeField decodes m[key] into dst. A missing or null key leaves dst
// untouched.
func decodeField(m map[string]any, key string, dst any) error {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal stage output field %q: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unexpected stage output shape for %q: %w", key, err)
	}
	return nil
}

// stringList keeps the string elements of v when v is a list.
func stringList(v any) []string {
	items, _ := v.([]any)
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
