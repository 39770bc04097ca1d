package storage

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

// Recorder copies the wire events of a run into a RunStore. Recording is
// best effort: store failures are logged and never reach the stream.
type Recorder struct {
	store  ports.RunStore
	logger *slog.Logger
	newID  func() string
}

func NewRecorder(store ports.RunStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, logger: logger, newID: uuid.NewString}
}

// Record returns the id of the new run and a sequence that yields events
// unchanged while storing them. With no store the events pass through and
// the id is empty.
func (r *Recorder) Record(ctx context.Context, input string, events iter.Seq[domain.WireEvent]) (string, iter.Seq[domain.WireEvent]) {
	if r == nil || r.store == nil {
		return "", events
	}

	id := r.newID()
	// Writes outlive the client connection.
	ctx = context.WithoutCancel(ctx)

	return id, func(yield func(domain.WireEvent) bool) {
		logger := r.logger.With(slog.String("run_id", id))

		recording := true
		if err := r.store.CreateRun(ctx, &domain.Run{ID: id, Input: input}); err != nil {
			logger.Error("failed to record run", slog.String("error", err.Error()))
			recording = false
		}

		status := domain.RunCompleted
		var deploymentID, errMsg string
		finished := false
		defer func() {
			if !recording {
				return
			}
			if !finished {
				status, errMsg = domain.RunFailed, "stream interrupted"
			}
			if err := r.store.FinishRun(ctx, id, status, deploymentID, errMsg); err != nil {
				logger.Error("failed to finish run", slog.String("error", err.Error()))
			}
		}()

		seq := 0
		for ev := range events {
			switch e := ev.(type) {
			case *domain.ErrorEvent:
				status, errMsg = domain.RunFailed, e.Message
			case *domain.ArchitectureEvent:
				if e.Data != nil {
					deploymentID = e.Data.ID
				}
			}

			if recording {
				r.append(ctx, logger, id, seq, ev)
				seq++
			}
			if !yield(ev) {
				return
			}
		}
		finished = true
	}
}

func (r *Recorder) append(ctx context.Context, logger *slog.Logger, id string, seq int, ev domain.WireEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("failed to encode event", slog.Int("seq", seq), slog.String("error", err.Error()))
		payload = []byte(`{}`)
	}
	rec := &domain.RecordedEvent{
		RunID:     id,
		Seq:       seq,
		Type:      ev.EventType(),
		Payload:   payload,
		CreatedAt: ev.EventTime(),
	}
	if err := r.store.AppendEvent(ctx, rec); err != nil {
		logger.Warn("failed to record event", slog.Int("seq", seq), slog.String("error", err.Error()))
	}
}
