// Package provider abstracts the language-model backend. The gateway
// speaks one wire protocol — OpenAI-compatible Chat Completions over
// SSE — and constructs a client per bot configuration, falling back to
// process-wide credentials when a bot omits its own.
package provider

import (
	"context"
	"encoding/json"
)

// Provider produces a lazy sequence of incremental output fragments and
// tool-invocation requests for one transcript. A Stream call is
// one-shot and finite: the returned channel is closed by the provider
// on end-of-stream or on the first transport failure.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier used in message provenance
	// and metrics labels.
	Name() string

	// Stream performs streaming inference. Fatal stream conditions are
	// delivered as an EventError before the channel closes; they are
	// not retried here — retry policy belongs to the caller.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// Close releases client resources.
	Close() error
}

// Request is the backend-facing projection of a transcript.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolDef
	MaxTokens       int
	ReasoningEffort string
}

// Message is one transcript entry in provider form. Tool-result
// messages are projected with the user role, matching how the engine
// records them.
type Message struct {
	Role    string
	Content string
}

// ToolDef advertises one callable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta      EventType = iota // Incremental assistant text
	EventReasoningDelta                  // Incremental reasoning text
	EventToolCall                        // Fully assembled tool invocation
	EventDone                            // Stream finished
	EventError                           // Stream failed
)

// Event is a single streaming event from the backend. Tool calls are
// delivered fully assembled: the client buffers argument deltas
// internally and emits one EventToolCall per invocation.
type Event struct {
	Type EventType

	// Delta carries incremental text for TextDelta/ReasoningDelta.
	Delta string

	// Tool call fields, populated on EventToolCall.
	ToolID   string
	ToolName string
	ToolArgs string // JSON-encoded arguments as produced by the model.

	// Err is populated on EventError.
	Err error
}
