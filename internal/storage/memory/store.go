package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

// Store is an in-memory implementation of ports.RunStore
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*domain.Run
	order  []string
	events map[string][]*domain.RecordedEvent
}

var _ ports.RunStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		runs:   make(map[string]*domain.Run),
		events: make(map[string][]*domain.RecordedEvent),
	}
}

func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	if run.Status == "" {
		run.Status = domain.RunInProgress
	}

	cp := *run
	s.runs[run.ID] = &cp
	s.order = append(s.order, run.ID)
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *domain.RecordedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[ev.RunID]
	if !exists {
		return fmt.Errorf("run %s: %w", ev.RunID, ports.ErrNotFound)
	}
	for _, existing := range s.events[ev.RunID] {
		if existing.Seq == ev.Seq {
			return fmt.Errorf("event %d of run %s already exists", ev.Seq, ev.RunID)
		}
	}

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	cp := *ev
	s.events[ev.RunID] = append(s.events[ev.RunID], &cp)
	run.EventCount++
	run.UpdatedAt = ev.CreatedAt
	return nil
}

func (s *Store) FinishRun(ctx context.Context, id string, status domain.RunStatus, deploymentID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
	}
	run.Status = status
	run.DeploymentID = deploymentID
	run.Error = errMsg
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, opts ports.ListOptions) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Run, 0, len(s.order))
	for _, id := range slices.Backward(s.order) {
		cp := *s.runs[id]
		result = append(result, &cp)
	}

	// Simple pagination
	start := max(opts.Offset, 0)
	if start >= len(result) {
		return []*domain.Run{}, nil
	}

	end := start + opts.Limit
	if opts.Limit <= 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) ListEvents(ctx context.Context, runID string) ([]*domain.RecordedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.runs[runID]; !exists {
		return nil, fmt.Errorf("run %s: %w", runID, ports.ErrNotFound)
	}

	events := slices.Clone(s.events[runID])
	slices.SortFunc(events, func(a, b *domain.RecordedEvent) int { return a.Seq - b.Seq })
	return events, nil
}

func (s *Store) Close() error {
	return nil
}
