package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/storage"
)

const inputPreviewLen = 48

var errHistoryDisabled = errors.New("run history is disabled (storage.type is none)")

func openRuns(g Globals) (ports.RunStore, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errHistoryDisabled
	}
	return store, nil
}

// HistoryList prints recorded runs, newest first.
func HistoryList(ctx context.Context, g Globals, limit, offset int, out io.Writer) error {
	store, err := openRuns(g)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, ports.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tEVENTS\tDEPLOYMENT\tCREATED\tINPUT")
	for _, r := range runs {
		deployment := r.DeploymentID
		if deployment == "" {
			deployment = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Status, r.EventCount, deployment,
			r.CreatedAt.Local().Format(time.DateTime), preview(r.Input))
	}
	return tw.Flush()
}

// HistoryEvents prints the recorded events of one run, one JSON object per
// line.
func HistoryEvents(ctx context.Context, g Globals, runID string, out io.Writer) error {
	store, err := openRuns(g)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(ctx, runID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		return fmt.Errorf("list events: %w", err)
	}
	for _, ev := range events {
		if _, err := fmt.Fprintf(out, "%s\n", ev.Payload); err != nil {
			return err
		}
	}
	return nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > inputPreviewLen {
		return string(r[:inputPreviewLen-3]) + "..."
	}
	return s
}
