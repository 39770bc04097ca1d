// Package terraform runs the terraform CLI as the pipeline's provisioning
// tool. Each phase is a child process whose combined output is streamed
// line by line.
package terraform

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

const (
	// DefaultBinary is looked up in PATH.
	DefaultBinary = "terraform"
	// DefaultWorkspaceRoot holds one directory per deployment.
	DefaultWorkspaceRoot = "./terraform/outputs"

	planFile    = "tfplan"
	maxLineSize = 1024 * 1024
)

var phaseArgs = map[domain.ToolPhase][]string{
	domain.ToolInit:   {"init", "-input=false", "-no-color"},
	domain.ToolPlan:   {"plan", "-input=false", "-no-color", "-out=" + planFile},
	domain.ToolApply:  {"apply", "-input=false", "-no-color", "-auto-approve", planFile},
	domain.ToolVerify: {"show", "-no-color"},
}

// Runner implements ports.Provisioner on top of the terraform CLI.
type Runner struct {
	binary string
	root   string
	env    []string
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinary overrides the terraform executable.
func WithBinary(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.binary = path
		}
	}
}

// WithEnv adds KEY=VALUE pairs to the child environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner rooted at workspaceRoot, creating the directory if needed.
func New(workspaceRoot string, opts ...Option) (*Runner, error) {
	if workspaceRoot == "" {
		workspaceRoot = DefaultWorkspaceRoot
	}
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	r := &Runner{
		binary: DefaultBinary,
		root:   abs,
		env:    []string{"TF_IN_AUTOMATION=1"},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute workspace root.
func (r *Runner) Root() string { return r.root }

// WriteWorkspace writes files into <root>/<deploymentID>. File names must be
// plain base names.
func (r *Runner) WriteWorkspace(deploymentID string, files map[string]string) (string, error) {
	if !isPlainName(deploymentID) {
		return "", fmt.Errorf("invalid deployment id %q", deploymentID)
	}
	dir := filepath.Join(r.root, deploymentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	for name, content := range files {
		if !isPlainName(name) {
			return "", fmt.Errorf("invalid terraform file name %q", name)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	r.logger.Info("terraform workspace written",
		slog.String("deployment_id", deploymentID),
		slog.String("dir", dir),
		slog.Int("files", len(files)),
	)
	return dir, nil
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// Execute runs one phase in dir. stdout and stderr are merged and yielded
// line by line as the process writes them. A non-zero exit, a start failure
// or an expired context yields a final *domain.ExternalToolError.
func (r *Runner) Execute(ctx context.Context, phase domain.ToolPhase, dir string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		args, ok := phaseArgs[phase]
		if !ok {
			yield("", &domain.ExternalToolError{Tool: "terraform", Phase: string(phase), Err: errors.New("unknown phase")})
			return
		}

		pr, pw, err := os.Pipe()
		if err != nil {
			yield("", &domain.ExternalToolError{Tool: "terraform", Phase: string(phase), Err: err})
			return
		}
		defer pr.Close()

		cmd := r.command(ctx, dir, args...)
		cmd.Stdout = pw
		cmd.Stderr = pw

		start := time.Now()
		if err := cmd.Start(); err != nil {
			pw.Close()
			yield("", &domain.ExternalToolError{Tool: "terraform", Phase: string(phase), Err: err})
			return
		}
		pw.Close()

		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			yield("", &domain.ExternalToolError{Tool: "terraform", Phase: string(phase), Err: fmt.Errorf("failed to read output: %w", err)})
			return
		}

		waitErr := cmd.Wait()
		r.logger.Debug("terraform command exited",
			slog.String("phase", string(phase)),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", waitErr),
		)
		if err := r.toolError(ctx, phase, waitErr); err != nil {
			yield("", err)
		}
	}
}

// FetchOutputs runs `terraform output -json` in dir.
func (r *Runner) FetchOutputs(ctx context.Context, dir string) (map[string]any, error) {
	cmd := r.command(ctx, dir, "output", "-json", "-no-color")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, r.toolError(ctx, "output", err)
	}

	outputs := map[string]any{}
	if len(bytes.TrimSpace(out)) == 0 {
		return outputs, nil
	}
	if err := json.Unmarshal(out, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse terraform outputs: %w", err)
	}
	return outputs, nil
}

func (r *Runner) command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

func (r *Runner) toolError(ctx context.Context, phase domain.ToolPhase, err error) error {
	if err == nil {
		return nil
	}
	te := &domain.ExternalToolError{Tool: "terraform", Phase: string(phase), Err: err}
	if ctxErr := ctx.Err(); ctxErr != nil {
		te.Err = fmt.Errorf("%w: %v", ctxErr, err)
		return te
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	return te
}

var _ ports.Provisioner = (*Runner)(nil)
