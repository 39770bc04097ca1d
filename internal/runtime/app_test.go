package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/storage/memory"
)

// queueCompleter answers prompts in order.
type queueCompleter struct {
	mu      sync.Mutex
	replies []map[string]any
}

func (c *queueCompleter) GenerateStructured(context.Context, string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return nil, &domain.CompletionError{Message: "no scripted reply"}
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func pipelineReplies() []map[string]any {
	return []map[string]any{
		{"summary": "A static site", "services_needed": []any{"cloud-storage"}},
		{
			"name":        "site",
			"explanation": "A public bucket",
			"resources": []any{
				map[string]any{"type": "cloud-storage", "name": "assets", "config": map[string]any{}},
			},
		},
		{"files": map[string]any{
			"main.tf": "resource \"google_storage_bucket\" \"assets\" {\n  name = \"assets\"\n}\n",
		}},
	}
}

type staticInventory struct{}

func (staticInventory) ListResources(context.Context) (*domain.InventorySnapshot, error) {
	return &domain.InventorySnapshot{ProjectID: "demo-project"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8000, CORSOrigins: []string{"http://localhost:5173"}, RequestTimeout: 5 * time.Second},
		GCP:    config.GCPConfig{ProjectID: "demo-project", Region: "us-central1"},
		LLM:    config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
		Terraform: config.TerraformConfig{
			Binary:        "terraform",
			WorkspaceRoot: filepath.Join(t.TempDir(), "outputs"),
			PhaseTimeout:  time.Minute,
		},
		Pipeline:  config.PipelineConfig{DryRun: true, HistoryTurns: 5, HistoryTokens: 4000},
		Storage:   config.StorageConfig{Type: "memory"},
		Telemetry: config.TelemetryConfig{ServiceName: "vibeops-test"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("Expected error without config")
	}
	if err.Error() != "config required (use WithConfig)" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestNew_BuildsFromConfig(t *testing.T) {
	cfg := testConfig(t)

	app, err := New(context.Background(), WithConfig(cfg), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Shutdown(context.Background())

	if _, ok := app.Runs().(*memory.Store); !ok {
		t.Errorf("run store = %T, want *memory.Store", app.Runs())
	}
	if app.Addr() != ":8000" {
		t.Errorf("Addr() = %q", app.Addr())
	}
	if _, err := os.Stat(cfg.Terraform.WorkspaceRoot); err != nil {
		t.Errorf("workspace root not created: %v", err)
	}
}

func TestNew_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "none"

	app, err := New(context.Background(), WithConfig(cfg), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Shutdown(context.Background())

	if app.Runs() != nil {
		t.Errorf("expected no run store, got %T", app.Runs())
	}
}

func TestNew_InvalidProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "vertex"

	if _, err := New(context.Background(), WithConfig(cfg), WithLogger(testLogger())); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestApp_RunDryRun(t *testing.T) {
	cfg := testConfig(t)
	store := memory.New()

	app, err := New(context.Background(),
		WithConfig(cfg),
		WithLogger(testLogger()),
		WithCompleter(&queueCompleter{replies: pipelineReplies()}),
		WithRunStore(store),
		WithInventory(staticInventory{}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Shutdown(context.Background())

	runID, events := app.Run(context.Background(), "Host a static site", nil)

	var last domain.WireEvent
	count := 0
	for ev := range events {
		if ev.EventType() == domain.EventError {
			t.Fatalf("unexpected error event: %+v", ev)
		}
		last = ev
		count++
	}
	status, ok := last.(*domain.AgentStatusEvent)
	if !ok || status.AgentID != "deployment" || status.Status != domain.AgentCompleted {
		t.Errorf("last event = %+v", last)
	}

	run, err := store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunCompleted || run.EventCount != count {
		t.Errorf("run = %+v, want completed with %d events", run, count)
	}

	matches, err := filepath.Glob(filepath.Join(cfg.Terraform.WorkspaceRoot, "deploy-*", "main.tf"))
	if err != nil || len(matches) != 1 {
		t.Errorf("expected one generated workspace, got %v (%v)", matches, err)
	}
}

func TestApp_StartAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	var runs ports.RunStore = memory.New()

	app, err := New(context.Background(),
		WithConfig(cfg),
		WithLogger(testLogger()),
		WithCompleter(&queueCompleter{}),
		WithRunStore(runs),
		WithInventory(staticInventory{}),
		WithListenAddr("127.0.0.1:0"),
		WithVersion("9.9.9"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Start(context.Background()); err == nil {
		t.Error("Expected error when starting twice")
	}

	resp, err := http.Get("http://" + app.Addr() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var banner map[string]string
	if err := json.Unmarshal(body, &banner); err != nil {
		t.Fatalf("decode banner %q: %v", body, err)
	}
	if banner["version"] != "9.9.9" {
		t.Errorf("banner = %v", banner)
	}

	resp, err = http.Get("http://" + app.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "go_goroutines") && !strings.Contains(string(body), "vibeops_") {
		t.Errorf("unexpected metrics body: %s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if err := <-app.Errors(); err != nil {
		t.Errorf("serve error: %v", err)
	}
}
