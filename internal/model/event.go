package model

// EventType tags one progress event in a generation or tweak stream.
// Downstream consumers key off these values; do not rename them.
type EventType string

const (
	EventStatus   EventType = "status"
	EventTool     EventType = "tool"
	EventThinking EventType = "thinking"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// UsageReport is the cost summary attached to a complete event.
type UsageReport struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalTokens  int     `json:"totalTokens"`
	Cost         float64 `json:"cost"`
}

// ProgressEvent is one element of the server-push stream emitted while a
// deck is generated or tweaked. Every stream terminates with exactly one
// complete or error event.
type ProgressEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Tool    string    `json:"tool,omitempty"`

	// Completion payload, set only on complete events.
	Document   string       `json:"document,omitempty"`
	Title      string       `json:"title,omitempty"`
	SlideCount int          `json:"slideCount,omitempty"`
	SessionID  string       `json:"sessionId,omitempty"`
	Usage      *UsageReport `json:"usage,omitempty"`
}

// StatusEvent builds a status progress event.
func StatusEvent(message string) ProgressEvent {
	return ProgressEvent{Type: EventStatus, Message: message}
}

// ToolEvent builds a tool progress event.
func ToolEvent(tool, message string) ProgressEvent {
	return ProgressEvent{Type: EventTool, Tool: tool, Message: message}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(message string) ProgressEvent {
	return ProgressEvent{Type: EventError, Message: message}
}
