// Package pricing provides rough monthly cost estimates for planned GCP
// resources.
package pricing

import (
	"fmt"
	"math"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

// Calculator estimates resource costs from a static price table.
type Calculator struct {
	prices *Prices
}

// Prices contains GCP list prices in USD per month.
type Prices struct {
	// CloudRun is the flat estimate for a lightly used Cloud Run service.
	CloudRun float64

	// MachineTypes maps Compute Engine machine type to monthly price.
	MachineTypes map[string]float64

	// SQLTiers maps Cloud SQL tier to monthly price.
	SQLTiers map[string]float64

	// StorageClasses maps Cloud Storage class to price per GB.
	StorageClasses map[string]float64

	// Fallback is used for known resource types with an unlisted size.
	Fallback float64
}

// Estimate is the priced breakdown of an architecture plan.
type Estimate struct {
	Items []LineItem
	Total float64
}

// LineItem is the cost of one planned resource.
type LineItem struct {
	Name    string
	Type    string
	Monthly float64
}

// String returns a formatted line item.
func (l LineItem) String() string {
	return fmt.Sprintf("%s (%s): $%.2f/mo", l.Name, l.Type, l.Monthly)
}

// DefaultPrices returns the built-in price table.
func DefaultPrices() *Prices {
	return &Prices{
		CloudRun: 10.0,
		MachineTypes: map[string]float64{
			"e2-micro":      6.11,
			"e2-small":      12.23,
			"e2-medium":     24.45,
			"n1-standard-1": 24.27,
			"n1-standard-2": 48.54,
		},
		SQLTiers: map[string]float64{
			"db-f1-micro":      7.67,
			"db-g1-small":      25.00,
			"db-n1-standard-1": 56.00,
		},
		StorageClasses: map[string]float64{
			"standard": 0.020,
			"nearline": 0.010,
			"coldline": 0.004,
		},
		Fallback: 10.0,
	}
}

// NewCalculator creates a calculator with the default price table.
func NewCalculator() *Calculator {
	return &Calculator{prices: DefaultPrices()}
}

// NewCalculatorWithPrices creates a calculator with custom prices.
func NewCalculatorWithPrices(p *Prices) *Calculator {
	return &Calculator{prices: p}
}

// MonthlyCost estimates one resource. Unknown resource types cost 0.
func (c *Calculator) MonthlyCost(resourceType string, config map[string]any) float64 {
	switch resourceType {
	case "cloud-run":
		return c.prices.CloudRun
	case "compute-engine":
		return c.lookup(c.prices.MachineTypes, stringField(config, "instance_type", "e2-micro"))
	case "cloud-sql":
		return c.lookup(c.prices.SQLTiers, stringField(config, "tier", "db-f1-micro"))
	case "cloud-storage":
		gb := numberField(config, "storage_gb", 10)
		rate, ok := c.prices.StorageClasses[stringField(config, "storage_class", "standard")]
		if !ok {
			rate = c.prices.StorageClasses["standard"]
		}
		return gb * rate
	default:
		return 0
	}
}

// EstimatePlan prices every resource of plan.
func (c *Calculator) EstimatePlan(plan *domain.ArchitecturePlan) *Estimate {
	est := &Estimate{}
	if plan == nil {
		return est
	}
	for _, r := range plan.Resources {
		cost := c.MonthlyCost(r.Type, r.Config)
		est.Items = append(est.Items, LineItem{Name: r.Name, Type: r.Type, Monthly: cost})
		est.Total += cost
	}
	est.Total = math.Round(est.Total*100) / 100
	return est
}

func (c *Calculator) lookup(table map[string]float64, key string) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return c.prices.Fallback
}

func stringField(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func numberField(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

var _ ports.CostEstimator = (*Calculator)(nil)
