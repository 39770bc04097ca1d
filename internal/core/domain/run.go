package domain

import (
	"encoding/json"
	"time"
)

// RunStatus is the outcome of a recorded pipeline run.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID           string    `json:"id" db:"id"`
	Input        string    `json:"input" db:"input"`
	Status       RunStatus `json:"status" db:"status"`
	DeploymentID string    `json:"deployment_id,omitempty" db:"deployment_id"`
	Error        string    `json:"error,omitempty" db:"error"`
	EventCount   int       `json:"event_count" db:"event_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RecordedEvent is one wire event as stored for replay.
type RecordedEvent struct {
	RunID     string          `json:"run_id" db:"run_id"`
	Seq       int             `json:"seq" db:"seq"`
	Type      EventType       `json:"type" db:"type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
