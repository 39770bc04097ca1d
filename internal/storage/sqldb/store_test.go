package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store
}

func TestSQLDBStore_CreateAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &domain.Run{ID: "run-1", Input: "build a web app with a database"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Input != run.Input {
		t.Errorf("Input = %v, want %v", got.Input, run.Input)
	}
	if got.Status != domain.RunInProgress {
		t.Errorf("Status = %v, want %v", got.Status, domain.RunInProgress)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
}

func TestSQLDBStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
	if _, err := store.ListEvents(context.Background(), "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("ListEvents() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishRun(context.Background(), "missing", domain.RunFailed, "", ""); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_AppendAndListEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &domain.Run{ID: "run-1", Input: "x"}); err != nil {
		t.Fatal(err)
	}

	payloads := []string{
		`{"type":"agent_status","status":"working"}`,
		`{"type":"text","content":"done"}`,
		`{"type":"error","message":"Architecture design failed: boom"}`,
	}
	types := []domain.EventType{domain.EventAgentStatus, domain.EventText, domain.EventError}
	for i, p := range payloads {
		ev := &domain.RecordedEvent{RunID: "run-1", Seq: i, Type: types[i], Payload: json.RawMessage(p)}
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent(%d) error = %v", i, err)
		}
	}

	events, err := store.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i || ev.Type != types[i] || string(ev.Payload) != payloads[i] {
			t.Errorf("event %d = %+v", i, ev)
		}
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", run.EventCount)
	}

	dup := &domain.RecordedEvent{RunID: "run-1", Seq: 0, Type: domain.EventText, Payload: json.RawMessage(`{}`)}
	if err := store.AppendEvent(ctx, dup); err == nil {
		t.Error("expected error for duplicate sequence number")
	}

	orphan := &domain.RecordedEvent{RunID: "missing", Seq: 0, Type: domain.EventText, Payload: json.RawMessage(`{}`)}
	if err := store.AppendEvent(ctx, orphan); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestSQLDBStore_FinishRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &domain.Run{ID: "run-1", Input: "x"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(ctx, "run-1", domain.RunCompleted, "deploy-1a2b3c4d", ""); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunCompleted || got.DeploymentID != "deploy-1a2b3c4d" {
		t.Errorf("run = %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestSQLDBStore_ListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b", "run-c", "run-d", "run-e"} {
		if err := store.CreateRun(ctx, &domain.Run{ID: id, Input: id}); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, ports.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-e" || runs[1].ID != "run-d" {
		t.Errorf("first page = %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, ports.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Errorf("last page = %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, ports.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 5 {
		t.Errorf("default limit returned %d runs", len(runs))
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func runIDs(runs []*domain.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
