package agents

import (
	"strings"
	"text/template"
)

var requirementsPrompt = template.Must(template.New("requirements").Parse(`You analyze requests for Google Cloud infrastructure.

Extract from the request below:
- the GCP services it needs (Cloud Run, Cloud SQL, Cloud Storage, Compute Engine, ...)
- constraints such as region, budget, performance or security needs
- dependencies between services
- expected traffic
- security requirements (authentication, encryption, compliance)

Request: {{.Input}}
{{if .History}}
Earlier conversation:
{{.History}}
{{end}}
Answer with one JSON object of this shape:
{
  "services_needed": ["cloud-run", "cloud-sql"],
  "constraints": {"region": "us-central1", "budget": "low", "security": "high"},
  "dependencies": [{"source": "web-app", "target": "database", "type": "data"}],
  "estimated_traffic": "1000 req/min",
  "security_requirements": ["https", "iam"],
  "summary": "one paragraph describing what will be built"
}
`))

var architecturePrompt = template.Must(template.New("architecture").Parse(`You design Google Cloud architectures following the Well-Architected framework:
least-privilege IAM, VPC isolation for data services, encryption, autoscaling
and right-sized tiers.

Requirements:
{{.Requirements}}

Default region: {{.Region}}

Answer with one JSON object of this shape:
{
  "name": "short application name",
  "resources": [
    {"type": "cloud-run", "name": "api-service", "region": "us-central1",
     "config": {"memory": "512Mi", "cpu": "1", "min_instances": 1, "max_instances": 10}},
    {"type": "cloud-sql", "name": "postgres-db", "region": "us-central1",
     "config": {"tier": "db-f1-micro", "storage": 10, "backup_enabled": true}}
  ],
  "networking": {"vpc": "custom-vpc", "subnets": ["subnet-a"], "firewall_rules": ["allow-https"]},
  "iam_roles": [{"service": "api-service", "role": "cloudsql.client"}],
  "region": "us-central1",
  "deployment_order": ["vpc", "cloud-sql", "cloud-run"],
  "explanation": "reasoning and tradeoffs"
}
Resource types: cloud-run, cloud-sql, cloud-storage, compute-engine, memorystore, firestore, vpc.
`))

var iacPrompt = template.Must(template.New("iac").Parse(`You write Terraform for the Google provider.

Architecture plan:
{{.Plan}}

Produce main.tf with the resources, variables.tf, outputs.tf exposing URLs, IPs
and connection names, and terraform.tfvars with defaults. Declare explicit
dependencies and enable backups where the plan asks for them. Do not write a
provider block; it is added for you.

Answer with one JSON object of this shape:
{
  "files": {
    "main.tf": "...",
    "variables.tf": "...",
    "outputs.tf": "...",
    "terraform.tfvars": "..."
  },
  "summary": "one sentence describing the generated configuration"
}
`))

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
