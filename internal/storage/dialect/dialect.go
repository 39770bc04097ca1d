// Package dialect describes how the run history schema and queries differ
// between the supported SQL backends.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect is one SQL backend for the run history store.
type Dialect interface {
	// Name is the storage.type value selecting this dialect.
	Name() string

	// DriverName is the database/sql driver to open.
	DriverName() string

	// Rebind rewrites ? placeholders into the backend's form.
	Rebind(query string) string

	// Init returns statements run on the fresh connection before the schema.
	Init() []string

	// Schema returns the DDL creating the runs and run_events tables and
	// their indexes. Every statement is idempotent.
	Schema() []string

	// MaxOpenConns caps the connection pool; 0 leaves it unbounded.
	MaxOpenConns() int
}

// Type names a supported backend.
type Type string

const (
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
)

// backend is a Dialect described as data.
type backend struct {
	name      Type
	driver    string
	timestamp string
	numbered  bool
	init      []string
	maxConns  int
}

var backends = map[Type]*backend{
	// Pragmas are per connection, so SQLite runs on a single one. That also
	// serializes the recorder's concurrent appends instead of surfacing
	// SQLITE_BUSY.
	SQLite: {
		name:      SQLite,
		driver:    "sqlite",
		timestamp: "TIMESTAMP",
		init: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		},
		maxConns: 1,
	},
	Postgres: {
		name:      Postgres,
		driver:    "pgx",
		timestamp: "TIMESTAMP WITH TIME ZONE",
		numbered:  true,
	},
}

var aliases = map[string]Type{
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"pgx":        Postgres,
}

// New returns the dialect for t.
func New(t Type) (Dialect, error) {
	b, ok := backends[t]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", t)
	}
	return b, nil
}

// FromDriverName resolves a storage type or driver alias.
func FromDriverName(name string) (Dialect, error) {
	t, ok := aliases[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", name)
	}
	return New(t)
}

func (b *backend) Name() string       { return string(b.name) }
func (b *backend) DriverName() string { return b.driver }
func (b *backend) Init() []string     { return b.init }
func (b *backend) MaxOpenConns() int  { return b.maxConns }

func (b *backend) Rebind(query string) string {
	if !b.numbered {
		return query
	}
	var out strings.Builder
	n := 0
	for _, ch := range query {
		if ch != '?' {
			out.WriteRune(ch)
			continue
		}
		n++
		out.WriteByte('$')
		out.WriteString(strconv.Itoa(n))
	}
	return out.String()
}

// Schema keeps event payloads as TEXT JSON on both backends so a replay
// returns exactly the bytes that were streamed.
func (b *backend) Schema() []string {
	ts := b.timestamp
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
id TEXT PRIMARY KEY,
input TEXT NOT NULL,
status TEXT NOT NULL,
deployment_id TEXT NOT NULL DEFAULT '',
error TEXT NOT NULL DEFAULT '',
event_count INTEGER NOT NULL DEFAULT 0,
created_at ` + ts + ` NOT NULL,
updated_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS run_events (
run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
seq INTEGER NOT NULL,
type TEXT NOT NULL,
payload TEXT NOT NULL,
created_at ` + ts + ` NOT NULL,
PRIMARY KEY (run_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_deployment ON runs(deployment_id)`,
	}
}
