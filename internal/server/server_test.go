package server

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
	"github.com/KaranKendre11/VibeOPS/internal/storage"
	"github.com/KaranKendre11/VibeOPS/internal/storage/memory"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// fakePipeline yields a fixed script and records what it was asked to run.
type fakePipeline struct {
	events  []domain.WireEvent
	input   string
	history []domain.Turn
	ctxErr  error
	yielded int
}

func (p *fakePipeline) Run(ctx context.Context, input string, history []domain.Turn) iter.Seq[domain.WireEvent] {
	p.input, p.history = input, history
	return func(yield func(domain.WireEvent) bool) {
		for _, ev := range p.events {
			p.yielded++
			if !yield(ev) {
				return
			}
		}
		p.ctxErr = ctx.Err()
	}
}

func scriptedEvents() []domain.WireEvent {
	return []domain.WireEvent{
		domain.NewAgentStatus(testTime, domain.StageRequirements, domain.AgentWorking, "Analyzing your requirements..."),
		domain.NewText(testTime, domain.StageRequirements, "✓ **Requirements Analysis Complete**"),
		domain.NewAgentStatus(testTime, domain.StageRequirements, domain.AgentCompleted, ""),
	}
}

type fakeInventory struct {
	snap *domain.InventorySnapshot
	err  error
}

func (f *fakeInventory) ListResources(ctx context.Context) (*domain.InventorySnapshot, error) {
	return f.snap, f.err
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Pipeline == nil {
		deps.Pipeline = &fakePipeline{events: scriptedEvents()}
	}
	if deps.CORSOrigins == nil {
		deps.CORSOrigins = []string{"http://localhost:5173"}
	}
	return New(":0", deps)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func dataFrames(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, chunk := range strings.Split(body, "\n\n") {
		if chunk == "" {
			continue
		}
		if !strings.HasPrefix(chunk, "data: ") {
			t.Fatalf("malformed frame %q", chunk)
		}
		out = append(out, strings.TrimPrefix(chunk, "data: "))
	}
	return out
}

func TestChat_Streams(t *testing.T) {
	pipe := &fakePipeline{events: scriptedEvents()}
	store := memory.New()
	s := newTestServer(t, Deps{Pipeline: pipe, Runs: store, Recorder: storage.NewRecorder(store, nil)})

	body := `{"content":"Deploy a web app","type":"text","metadata":{"conversation_history":[{"role":"user","content":"hi"}]}}`
	rec := do(s, httptest.NewRequest("POST", "/api/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	if pipe.input != "Deploy a web app" {
		t.Errorf("input = %q", pipe.input)
	}
	if len(pipe.history) != 1 || pipe.history[0].Role != "user" {
		t.Errorf("history = %+v", pipe.history)
	}

	frames := dataFrames(t, rec.Body.String())
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4: %v", len(frames), frames)
	}
	if frames[3] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[3])
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["type"] != "agent_status" || first["agent_id"] != "requirements-analysis" {
		t.Errorf("first frame = %v", first)
	}

	runID := rec.Header().Get("X-Run-ID")
	if runID == "" {
		t.Fatal("expected X-Run-ID header")
	}
	run, err := store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunCompleted || run.EventCount != 3 {
		t.Errorf("run = %+v", run)
	}
}

func TestChat_WithoutHistoryStore(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec := do(s, httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"content":"hello"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Run-ID") != "" {
		t.Error("expected no run id without a store")
	}
	if frames := dataFrames(t, rec.Body.String()); len(frames) != 4 {
		t.Errorf("got %d frames, want 4", len(frames))
	}
}

func TestChat_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"content":`, http.StatusBadRequest},
		{"empty content", `{"content":"   "}`, http.StatusUnprocessableEntity},
		{"missing content", `{"type":"text"}`, http.StatusUnprocessableEntity},
		{"unknown type", `{"content":"x","type":"image"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipe := &fakePipeline{events: scriptedEvents()}
			s := newTestServer(t, Deps{Pipeline: pipe})

			rec := do(s, httptest.NewRequest("POST", "/api/chat", strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp["detail"] == "" {
				t.Errorf("expected detail body, got %v (%v)", resp, err)
			}
			if pipe.yielded != 0 {
				t.Error("pipeline must not run for an invalid request")
			}
		})
	}
}

func TestChat_ClientGoneKeepsDraining(t *testing.T) {
	pipe := &fakePipeline{events: scriptedEvents()}
	store := memory.New()
	s := newTestServer(t, Deps{Pipeline: pipe, Runs: store, Recorder: storage.NewRecorder(store, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"content":"hello"}`)).WithContext(ctx)
	rec := do(s, req)

	if pipe.yielded != len(pipe.events) {
		t.Errorf("pipeline yielded %d events, want %d", pipe.yielded, len(pipe.events))
	}
	if pipe.ctxErr != nil {
		t.Errorf("pipeline context was cancelled: %v", pipe.ctxErr)
	}
	if strings.Contains(rec.Body.String(), "data: ") {
		t.Errorf("expected no frames written after disconnect, got %q", rec.Body.String())
	}

	run, err := store.GetRun(context.Background(), rec.Header().Get("X-Run-ID"))
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunCompleted || run.EventCount != len(pipe.events) {
		t.Errorf("run = %+v", run)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec := do(s, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `{"service":"vibe-devops-backend","status":"healthy"}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, Deps{Version: "2.1.0"})

	rec := do(s, httptest.NewRequest("GET", "/", nil))

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["message"] != "Vibe DevOps GCP API" || resp["version"] != "2.1.0" || resp["status"] != "running" {
		t.Errorf("root = %v", resp)
	}
}

func TestResources(t *testing.T) {
	snap := &domain.InventorySnapshot{
		ProjectID:      "demo",
		Region:         "us-central1",
		StorageBuckets: []domain.StorageBucket{{Name: "assets"}},
		LastRefresh:    testTime,
	}

	tests := []struct {
		name      string
		inventory ports.Inventory
		status    int
		contains  string
	}{
		{"snapshot", &fakeInventory{snap: snap}, http.StatusOK, `"project_id":"demo"`},
		{"failure", &fakeInventory{err: errors.New("credentials missing")}, http.StatusInternalServerError, `"detail":"credentials missing"`},
		{"disabled", nil, http.StatusServiceUnavailable, `"detail"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Deps{Inventory: tt.inventory})

			rec := do(s, httptest.NewRequest("GET", "/api/gcp/resources", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.contains)
			}
		})
	}
}

func seedRuns(t *testing.T, store ports.RunStore, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := store.CreateRun(ctx, &domain.Run{ID: id, Input: "input " + id}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListRuns(t *testing.T) {
	store := memory.New()
	seedRuns(t, store, "run-a", "run-b", "run-c")
	s := newTestServer(t, Deps{Runs: store})

	tests := []struct {
		name   string
		query  string
		status int
		ids    []string
	}{
		{"default", "", http.StatusOK, []string{"run-c", "run-b", "run-a"}},
		{"paged", "?limit=1&offset=1", http.StatusOK, []string{"run-b"}},
		{"past end", "?offset=10", http.StatusOK, []string{}},
		{"bad limit", "?limit=abc", http.StatusBadRequest, nil},
		{"zero limit", "?limit=0", http.StatusBadRequest, nil},
		{"negative offset", "?offset=-1", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, httptest.NewRequest("GET", "/api/deployments"+tt.query, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.ids == nil {
				return
			}
			var list RunList
			if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
				t.Fatal(err)
			}
			if list.Runs == nil {
				t.Fatal("runs must encode as an array")
			}
			if len(list.Runs) != len(tt.ids) {
				t.Fatalf("got %d runs, want %d", len(list.Runs), len(tt.ids))
			}
			for i, id := range tt.ids {
				if list.Runs[i].ID != id {
					t.Errorf("run %d = %s, want %s", i, list.Runs[i].ID, id)
				}
			}
		})
	}
}

func TestRunEndpoints_HistoryDisabled(t *testing.T) {
	s := newTestServer(t, Deps{})

	for _, path := range []string{"/api/deployments", "/api/deployments/x", "/api/deployments/x/events"} {
		if rec := do(s, httptest.NewRequest("GET", path, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestRunEvents(t *testing.T) {
	store := memory.New()
	seedRuns(t, store, "run-a")
	ctx := context.Background()
	payloads := []string{`{"type":"text","content":"one"}`, `{"type":"error","message":"two"}`}
	for i, p := range payloads {
		ev := &domain.RecordedEvent{RunID: "run-a", Seq: i, Type: domain.EventText, Payload: json.RawMessage(p), CreatedAt: testTime}
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	s := newTestServer(t, Deps{Runs: store})

	t.Run("replay", func(t *testing.T) {
		rec := do(s, httptest.NewRequest("GET", "/api/deployments/run-a/events", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got []json.RawMessage
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || string(got[0]) != payloads[0] || string(got[1]) != payloads[1] {
			t.Errorf("events = %s", got)
		}
	})

	t.Run("get run", func(t *testing.T) {
		rec := do(s, httptest.NewRequest("GET", "/api/deployments/run-a", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"event_count":2`) {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		for _, path := range []string{"/api/deployments/nope", "/api/deployments/nope/events"} {
			if rec := do(s, httptest.NewRequest("GET", path, nil)); rec.Code != http.StatusNotFound {
				t.Errorf("%s: status = %d, want 404", path, rec.Code)
			}
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RecordEvent(domain.EventText)
	s := newTestServer(t, Deps{Metrics: m})

	rec := do(s, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vibeops_") {
		t.Errorf("expected vibeops metrics, got %s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Deps{})

	req := httptest.NewRequest("OPTIONS", "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := do(s, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/api/chat", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = do(s, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q for unknown origin", got)
	}
}
