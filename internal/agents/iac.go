package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

const providerFile = "provider.tf"

// The id doubles as a directory name.
var deploymentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

var blockPattern = regexp.MustCompile(`(?m)^\s*(resource|data|module)\s+"`)

// IaC turns the architecture plan into Terraform files and writes them to a
// per-deployment workspace.
type IaC struct {
	completer   ports.Completer
	provisioner ports.Provisioner
	logger      *slog.Logger
	newID       func() string
}

type IaCOption func(*IaC)

// WithIDGenerator overrides deployment id generation.
func WithIDGenerator(fn func() string) IaCOption {
	return func(a *IaC) {
		a.newID = fn
	}
}

func NewIaC(c ports.Completer, p ports.Provisioner, logger *slog.Logger, opts ...IaCOption) *IaC {
	a := &IaC{completer: c, provisioner: p, logger: orDiscard(logger), newID: NewDeploymentID}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewDeploymentID returns "deploy-" followed by 8 hex characters.
func NewDeploymentID() string {
	return "deploy-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (a *IaC) Name() domain.StageName { return domain.StageIaCGeneration }

func (a *IaC) Execute(ctx context.Context, st *domain.PipelineState) domain.StageResult {
	if st.Architecture == nil {
		return domain.Failf("No architecture plan found for IaC generation")
	}

	prompt, err := render(iacPrompt, struct{ Plan string }{indentJSON(st.Architecture.Raw, st.Architecture)})
	if err != nil {
		return fail(a.Name(), iacFailed, err)
	}

	m, err := a.completer.GenerateStructured(ctx, prompt)
	if err != nil {
		return fail(a.Name(), iacFailed, err)
	}
	cfg, err := domain.DecodeTerraformConfig(m)
	if err != nil {
		return fail(a.Name(), iacFailed, err)
	}

	if cfg.DeploymentID == "" || !deploymentIDPattern.MatchString(cfg.DeploymentID) {
		cfg.DeploymentID = a.newID()
	}
	if _, ok := cfg.Files[providerFile]; !ok {
		cfg.Files[providerFile] = ProviderConfig(st.ProjectID, st.Region)
	}

	if problems := ValidateTerraform(cfg.Files); len(problems) > 0 {
		return fail(a.Name(), iacFailed, errors.New(strings.Join(problems, "; ")))
	}

	dir, err := a.provisioner.WriteWorkspace(cfg.DeploymentID, cfg.Files)
	if err != nil {
		return fail(a.Name(), iacFailed, err)
	}
	cfg.Workspace = dir

	a.logger.Info("terraform generated",
		slog.String("deployment_id", cfg.DeploymentID),
		slog.Int("files", len(cfg.Files)),
	)

	return domain.StageResult{
		Terraform:    cfg,
		DeploymentID: cfg.DeploymentID,
		Logs:         []string{fmt.Sprintf("Terraform written to %s", dir)},
	}
}

// ProviderConfig renders the google provider block for project and region.
func ProviderConfig(projectID, region string) string {
	return fmt.Sprintf(`terraform {
  required_providers {
    google = {
      source  = "hashicorp/google"
      version = "~> 5.0"
    }
  }
}

provider "google" {
  project = %q
  region  = %q
}
`, projectID, region)
}

// ValidateTerraform performs the structural checks that can be done without
// the terraform binary. It returns one message per problem, in file order.
func ValidateTerraform(files map[string]string) []string {
	var problems []string

	main, ok := files["main.tf"]
	if !ok {
		problems = append(problems, "Missing required file: main.tf")
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(files[name]) == "" {
			problems = append(problems, fmt.Sprintf("File %s is empty", name))
		}
	}

	if ok && strings.TrimSpace(main) != "" && !blockPattern.MatchString(main) {
		problems = append(problems, "main.tf should contain resource or data blocks")
	}
	return problems
}
