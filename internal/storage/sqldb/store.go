// Package sqldb stores run history in SQLite or PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/storage/dialect"
)

const defaultListLimit = 50

// Store is a SQL implementation of ports.RunStore that supports multiple
// database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	now     func() time.Time
}

var _ ports.RunStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if n := d.MaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}

	for _, stmt := range d.Init() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize %s connection: %w", d.Name(), err)
		}
	}

	store := &Store{db: db, dialect: d, now: time.Now}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	now := s.now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = domain.RunInProgress
	}

	query := s.dialect.Rebind(`INSERT INTO runs (id, input, status, deployment_id, error, event_count, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Input, run.Status, run.DeploymentID, run.Error, run.EventCount, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *domain.RecordedEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := s.dialect.Rebind(`INSERT INTO run_events (run_id, seq, type, payload, created_at)
	          VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert, ev.RunID, ev.Seq, ev.Type, string(ev.Payload), ev.CreatedAt); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	update := s.dialect.Rebind(`UPDATE runs SET event_count = event_count + 1, updated_at = ? WHERE id = ?`)
	res, err := tx.ExecContext(ctx, update, ev.CreatedAt, ev.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", ev.RunID, ports.ErrNotFound)
	}

	return tx.Commit()
}

func (s *Store) FinishRun(ctx context.Context, id string, status domain.RunStatus, deploymentID, errMsg string) error {
	query := s.dialect.Rebind(`UPDATE runs SET status = ?, deployment_id = ?, error = ?, updated_at = ? WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query, status, deploymentID, errMsg, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	query := s.dialect.Rebind(`SELECT id, input, status, deployment_id, error, event_count, created_at, updated_at
	          FROM runs WHERE id = ?`)

	var run domain.Run
	err := s.db.GetContext(ctx, &run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, opts ports.ListOptions) ([]*domain.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := s.dialect.Rebind(`SELECT id, input, status, deployment_id, error, event_count, created_at, updated_at
	          FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)

	runs := []*domain.Run{}
	if err := s.db.SelectContext(ctx, &runs, query, limit, max(opts.Offset, 0)); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// eventRow scans payload as text; drivers disagree on whether TEXT
// columns come back as string or []byte.
type eventRow struct {
	RunID     string           `db:"run_id"`
	Seq       int              `db:"seq"`
	Type      domain.EventType `db:"type"`
	Payload   string           `db:"payload"`
	CreatedAt time.Time        `db:"created_at"`
}

func (s *Store) ListEvents(ctx context.Context, runID string) ([]*domain.RecordedEvent, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := s.dialect.Rebind(`SELECT run_id, seq, type, payload, created_at
	          FROM run_events WHERE run_id = ? ORDER BY seq ASC`)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]*domain.RecordedEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, &domain.RecordedEvent{
			RunID:     r.RunID,
			Seq:       r.Seq,
			Type:      r.Type,
			Payload:   json.RawMessage(r.Payload),
			CreatedAt: r.CreatedAt,
		})
	}
	return events, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
