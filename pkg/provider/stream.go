package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/plauder-dev/plauder/pkg/api"
)

// Chat Completions wire types. Only the fields this client reads or
// writes are modeled.

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	Tools           []chatTool    `json:"tools,omitempty"`
	Stream          bool          `json:"stream"`
	MaxTokens       int           `json:"max_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string          `json:"type"`
	Function chatFunctionDef `json:"function"`
}

type chatFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatChunk struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Delta        chatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type chatDelta struct {
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content"`
	ToolCalls        []toolCallDelta `json:"tool_calls"`
}

type toolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id"`
	Function functionDelta `json:"function"`
}

type functionDelta struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// toolCallBuffer accumulates a tool call streamed as fragments across
// chunks. The backend sends the id and name once and the arguments as
// a sequence of string deltas keyed by index.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// parseStream reads SSE frames from the backend stream and emits
// provider events until the stream completes or ctx is cancelled. Tool
// calls are buffered per index and flushed, fully assembled, when the
// choice reports a finish reason.
func parseStream(ctx context.Context, body io.Reader, ch chan<- Event) {
	buffers := make(map[int]*toolCallBuffer)
	flushed := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			if !flushed {
				flushToolCalls(ctx, buffers, ch)
			}
			emit(ctx, ch, Event{Type: EventDone})
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			emit(ctx, ch, Event{
				Type: EventError,
				Err:  api.NewProviderProtocolError("malformed stream chunk: " + err.Error()),
			})
			return
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.ReasoningContent != "" {
				if !emit(ctx, ch, Event{Type: EventReasoningDelta, Delta: choice.Delta.ReasoningContent}) {
					return
				}
			}
			if choice.Delta.Content != "" {
				if !emit(ctx, ch, Event{Type: EventTextDelta, Delta: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				buf, ok := buffers[tc.Index]
				if !ok {
					buf = &toolCallBuffer{}
					buffers[tc.Index] = buf
				}
				if tc.ID != "" {
					buf.id = tc.ID
				}
				if tc.Function.Name != "" {
					buf.name = tc.Function.Name
				}
				buf.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason != "" && !flushed {
				if !flushToolCalls(ctx, buffers, ch) {
					return
				}
				flushed = true
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			emit(ctx, ch, Event{
				Type: EventError,
				Err:  api.NewProviderUnavailableError("provider stream interrupted: " + ctx.Err().Error()),
			})
			return
		}
		emit(ctx, ch, Event{
			Type: EventError,
			Err:  api.NewProviderUnavailableError("reading provider stream: " + err.Error()),
		})
		return
	}

	// Stream ended without a terminating [DONE]. Some backends close the
	// connection instead of sending the sentinel; treat it as completion.
	if !flushed {
		if !flushToolCalls(ctx, buffers, ch) {
			return
		}
	}
	emit(ctx, ch, Event{Type: EventDone})
}

// flushToolCalls emits one EventToolCall per buffered call, in index
// order. Reports false if the context was cancelled mid-flush.
func flushToolCalls(ctx context.Context, buffers map[int]*toolCallBuffer, ch chan<- Event) bool {
	indexes := make([]int, 0, len(buffers))
	for i := range buffers {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		buf := buffers[i]
		if buf.name == "" {
			continue
		}
		ev := Event{
			Type:     EventToolCall,
			ToolID:   buf.id,
			ToolName: buf.name,
			ToolArgs: buf.args.String(),
		}
		if !emit(ctx, ch, ev) {
			return false
		}
	}
	return true
}

// emit sends an event unless the context is already cancelled. Reports
// whether the event was delivered.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
