package domain

import "time"

// EventType is the discriminant of a wire event.
type EventType string

const (
	EventAgentStatus      EventType = "agent_status"
	EventText             EventType = "text"
	EventArchitecture     EventType = "architecture"
	EventDeploymentStatus EventType = "deployment_status"
	EventError            EventType = "error"
)

// AgentState is the lifecycle state reported in agent_status events.
type AgentState string

const (
	AgentWorking   AgentState = "working"
	AgentCompleted AgentState = "completed"
	AgentFailed    AgentState = "failed"
)

// WireEvent is an event streamed to the client. Every implementation
// serializes with a "type" discriminant and a "timestamp".
type WireEvent interface {
	EventType() EventType
	EventTime() time.Time
}

// Header carries the fields common to all wire events.
type Header struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (h Header) EventType() EventType { return h.Type }
func (h Header) EventTime() time.Time { return h.Timestamp }

// AgentStatusEvent reports a stage lifecycle transition.
type AgentStatusEvent struct {
	Header
	AgentID     string     `json:"agent_id"`
	AgentName   string     `json:"agent_name"`
	Status      AgentState `json:"status"`
	CurrentTask string     `json:"current_task,omitempty"`
	Activity    string     `json:"activity,omitempty"`
}

// TextEvent is a human readable chunk of the conversation.
type TextEvent struct {
	Header
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
}

// ArchitectureEvent carries the live architecture snapshot after a
// successful deployment.
type ArchitectureEvent struct {
	Header
	Data *ArchitectureSnapshot `json:"data"`
}

// DeploymentStatusEvent wraps one ProgressEvent.
type DeploymentStatusEvent struct {
	Header
	Data ProgressEvent `json:"data"`
}

// ErrorEvent terminates a run.
type ErrorEvent struct {
	Header
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewAgentStatus(at time.Time, stage StageName, status AgentState, task string) *AgentStatusEvent {
	return &AgentStatusEvent{
		Header:      Header{Type: EventAgentStatus, Timestamp: at},
		AgentID:     stage.AgentID(),
		AgentName:   stage.AgentName(),
		Status:      status,
		CurrentTask: task,
		Activity:    task,
	}
}

func NewText(at time.Time, stage StageName, content string) *TextEvent {
	return &TextEvent{
		Header:  Header{Type: EventText, Timestamp: at},
		Content: content,
		Agent:   stage.AgentID(),
	}
}

func NewArchitecture(at time.Time, snapshot *ArchitectureSnapshot) *ArchitectureEvent {
	return &ArchitectureEvent{
		Header: Header{Type: EventArchitecture, Timestamp: at},
		Data:   snapshot,
	}
}

func NewDeploymentStatus(at time.Time, ev ProgressEvent) *DeploymentStatusEvent {
	return &DeploymentStatusEvent{
		Header: Header{Type: EventDeploymentStatus, Timestamp: at},
		Data:   ev,
	}
}

func NewError(at time.Time, message string) *ErrorEvent {
	return &ErrorEvent{
		Header:  Header{Type: EventError, Timestamp: at},
		Message: message,
	}
}
