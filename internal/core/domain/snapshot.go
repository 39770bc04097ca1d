package domain

import "time"

// ArchitectureSnapshot is the live view of a deployed environment sent to
// the client when a deployment finishes.
type ArchitectureSnapshot struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	ProjectID         string             `json:"project_id"`
	ApplicationStacks []ApplicationStack `json:"application_stacks"`
	Connections       []Connection       `json:"connections"`
	TotalCost         float64            `json:"total_cost"`
	CostBreakdown     map[string]float64 `json:"cost_breakdown"`
	Outputs           map[string]any     `json:"outputs,omitempty"`
	LastRefresh       time.Time          `json:"last_refresh"`
	HasGCPAccess      bool               `json:"has_gcp_access"`
}

// ApplicationStack groups the services of one deployment.
type ApplicationStack struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Services       []Service         `json:"services"`
	PrimaryService string            `json:"primary_service"`
	Labels         map[string]string `json:"labels"`
	TotalCost      float64           `json:"total_cost"`
	HealthStatus   string            `json:"health_status"`
	VPC            string            `json:"vpc,omitempty"`
	Subnets        []string          `json:"subnets,omitempty"`
}

// Service is the display record of one deployed resource.
type Service struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	Region        string            `json:"region"`
	ProjectID     string            `json:"project_id"`
	Description   string            `json:"description"`
	Configuration map[string]any    `json:"configuration"`
	CostEstimate  CostEstimate      `json:"cost_estimate"`
	HealthStatus  string            `json:"health_status"`
	Labels        map[string]string `json:"labels"`
}

// CostEstimate is a monthly cost figure.
type CostEstimate struct {
	Monthly   float64 `json:"monthly"`
	Breakdown string  `json:"breakdown"`
	Currency  string  `json:"currency"`
}

// Connection links two services.
type Connection struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Target         string `json:"target"`
	ConnectionType string `json:"connection_type"`
	Description    string `json:"description"`
}

// InventorySnapshot is the read-only listing of resources in the project.
type InventorySnapshot struct {
	ComputeInstances []ComputeInstance `json:"compute_instances"`
	StorageBuckets   []StorageBucket   `json:"storage_buckets"`
	ProjectID        string            `json:"project_id"`
	Region           string            `json:"region"`
	LastRefresh      time.Time         `json:"last_refresh"`
}

// ComputeInstance is one VM found by the inventory reader.
type ComputeInstance struct {
	Name        string            `json:"name"`
	Zone        string            `json:"zone"`
	MachineType string            `json:"machine_type"`
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// StorageBucket is one bucket found by the inventory reader.
type StorageBucket struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
