package api

// EventType identifies the type of a stream event.
type EventType string

const (
	// EventToken carries one incremental fragment of assistant text.
	EventToken EventType = "token"

	// EventReasoning carries one incremental fragment of reasoning text.
	EventReasoning EventType = "reasoning"

	// EventToolCall announces a tool invocation requested by the model.
	// When NeedsConfirmation is set the call was not executed and the
	// client must re-submit it through the confirmation endpoint.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries the outcome of an executed tool call.
	EventToolResult EventType = "tool_result"

	// EventMessage carries a complete provenance-tagged message, used by
	// the confirmed-execution stream.
	EventMessage EventType = "message"

	// EventError reports a turn-fatal failure; the stream terminates
	// after it.
	EventError EventType = "error"
)

// StreamEvent is a single event on a turn's live stream. The transport
// adapter frames each event as one data line; the [DONE] sentinel is
// written by the transport, not represented here.
type StreamEvent struct {
	Type EventType `json:"type"`

	// Token / reasoning fragment.
	Text string `json:"text,omitempty"`

	// Tool call / result fields.
	Server            string         `json:"server,omitempty"`
	Tool              string         `json:"tool,omitempty"`
	Arguments         map[string]any `json:"arguments,omitempty"`
	NeedsConfirmation bool           `json:"needs_confirmation,omitempty"`
	Result            string         `json:"result,omitempty"`
	IsError           bool           `json:"is_error,omitempty"`

	// Complete message (confirmed execution).
	Message *Message `json:"message,omitempty"`

	// Failure detail.
	Error *ChatError `json:"error,omitempty"`
}

// TokenEvent builds a token event for one text fragment.
func TokenEvent(text string) StreamEvent {
	return StreamEvent{Type: EventToken, Text: text}
}

// ReasoningEvent builds a reasoning fragment event.
func ReasoningEvent(text string) StreamEvent {
	return StreamEvent{Type: EventReasoning, Text: text}
}

// ToolCallEvent builds a tool_call event.
func ToolCallEvent(server, tool string, args map[string]any, needsConfirmation bool) StreamEvent {
	return StreamEvent{
		Type:              EventToolCall,
		Server:            server,
		Tool:              tool,
		Arguments:         args,
		NeedsConfirmation: needsConfirmation,
	}
}

// ToolResultEvent builds a tool_result event.
func ToolResultEvent(server, tool, result string, isError bool) StreamEvent {
	return StreamEvent{
		Type:    EventToolResult,
		Server:  server,
		Tool:    tool,
		Result:  result,
		IsError: isError,
	}
}

// ErrorEvent wraps a ChatError as a stream event.
func ErrorEvent(err *ChatError) StreamEvent {
	return StreamEvent{Type: EventError, Error: err}
}
