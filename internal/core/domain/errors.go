package domain

import (
	"errors"
	"fmt"
)

// StageError reports that a stage could not produce its output.
type StageError struct {
	Stage   StageName
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage's failure prefix, e.g.
// "Architecture design failed: <err>".
func NewStageError(stage StageName, prefix string, err error) *StageError {
	return &StageError{Stage: stage, Message: prefix, Err: err}
}

// CompletionError is returned by completion services on transport failures
// or responses that do not contain a JSON object.
type CompletionError struct {
	Provider string
	// StatusCode is the upstream HTTP status, 0 for transport failures.
	StatusCode int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Provider != "" {
		return e.Provider + ": " + msg
	}
	return msg
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ExternalToolError reports that the provisioning tool could not be started,
// exited non-zero or ran past its deadline.
type ExternalToolError struct {
	Tool     string
	Phase    string
	ExitCode int
	Err      error
}

func (e *ExternalToolError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s %s failed with exit code %d: %v", e.Tool, e.Phase, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Tool, e.Phase, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// SerializationError reports that one wire event could not be encoded.
type SerializationError struct {
	Type EventType
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to serialize %s event: %v", e.Type, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IsCompletionError reports whether err is or wraps a CompletionError.
func IsCompletionError(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce)
}

// IsExternalToolError reports whether err is or wraps an ExternalToolError.
func IsExternalToolError(err error) bool {
	var te *ExternalToolError
	return errors.As(err, &te)
}
