package core

// ToolEventType discriminates the events a tool implementation streams.
type ToolEventType string

const (
	// ToolEventChunk carries partial text content.
	ToolEventChunk ToolEventType = "content_chunk"
	// ToolEventStatus carries a human-readable progress note. Not forwarded
	// to callers as message content; used for logging only.
	ToolEventStatus ToolEventType = "status"
	// ToolEventResult is the terminal success payload.
	ToolEventResult ToolEventType = "final_result"
	// ToolEventError is the terminal failure payload. A tool emits at most
	// one and stops afterwards.
	ToolEventError ToolEventType = "error"
)

// ToolEvent is the unit emitted by a tool. A tool's event sequence is finite
// and ordered: zero or more chunk/status events followed by either one or
// more result events or exactly one error event.
type ToolEvent struct {
	Type    ToolEventType  `json:"type"`
	Content string         `json:"content,omitempty"`
	Note    string         `json:"note,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// NewToolChunk builds a partial content event.
func NewToolChunk(content string) ToolEvent {
	return ToolEvent{Type: ToolEventChunk, Content: content}
}

// NewToolStatus builds a progress note event.
func NewToolStatus(note string) ToolEvent {
	return ToolEvent{Type: ToolEventStatus, Note: note}
}

// NewToolResult builds a terminal success event with an optional payload.
func NewToolResult(result map[string]any) ToolEvent {
	return ToolEvent{Type: ToolEventResult, Result: result}
}

// NewToolError builds the terminal failure event.
func NewToolError(errMsg string) ToolEvent {
	return ToolEvent{Type: ToolEventError, Error: errMsg}
}
