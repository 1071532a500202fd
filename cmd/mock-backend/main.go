// Command mock-backend runs a deterministic Chat Completions server
// for manual testing against a live plauder instance. It streams
// predictable responses keyed off the request content: prompts
// mentioning the weather produce a get_weather tool call on the first
// round and a summary once the tool result is fed back, prompts
// mentioning reasoning produce reasoning deltas before the answer.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}
	if !req.Stream {
		http.Error(w, `{"error":{"message":"only streaming requests are supported","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := &chunkStream{w: w, flusher: flusher, model: req.Model}
	if s.model == "" {
		s.model = "mock-model"
	}

	lastMsg := strings.ToLower(lastUserMessage(&req))
	switch {
	case len(req.Tools) > 0 && strings.Contains(lastMsg, "weather") && !sawToolResult(&req):
		s.streamToolCall("get_weather", `{"city":"Berlin"}`)
	case sawToolResult(&req):
		s.streamText(nil, []string{"It is ", "18°C ", "and ", "sunny ", "in ", "Berlin."})
	case strings.Contains(lastMsg, "reason"):
		s.streamText(
			[]string{"Considering ", "the ", "question ", "carefully. "},
			[]string{"The ", "answer ", "is ", "42."})
	default:
		s.streamText(nil, []string{"Hello", ", ", "nice", " ", "day", "!"})
	}
}

// lastUserMessage returns the newest user-role message content.
func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// sawToolResult reports whether the history already carries a fed-back
// tool result. The gateway relays results as user messages containing
// the raw tool output, which for get_weather is a JSON object.
func sawToolResult(req *chatRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role == "user" && strings.HasPrefix(strings.TrimSpace(msg.Content), "{") {
			return true
		}
	}
	return false
}

// --- Streaming ---

type chunkStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	model   string
}

func (s *chunkStream) streamText(reasoning, tokens []string) {
	s.writeChunk(map[string]any{"role": "assistant"}, nil)
	for _, tok := range reasoning {
		s.writeChunk(map[string]any{"reasoning_content": tok}, nil)
	}
	for _, tok := range tokens {
		s.writeChunk(map[string]any{"content": tok}, nil)
	}
	s.writeChunk(map[string]any{}, strPtr("stop"))
	s.done()
}

// streamToolCall emits a tool call with the arguments split across
// chunks, the way real backends deliver them.
func (s *chunkStream) streamToolCall(name, args string) {
	s.writeChunk(map[string]any{"role": "assistant"}, nil)
	s.writeChunk(map[string]any{
		"tool_calls": []any{map[string]any{
			"index":    0,
			"id":       "call_mock_1",
			"function": map[string]any{"name": name, "arguments": ""},
		}},
	}, nil)
	half := len(args) / 2
	for _, fragment := range []string{args[:half], args[half:]} {
		s.writeChunk(map[string]any{
			"tool_calls": []any{map[string]any{
				"index":    0,
				"function": map[string]any{"arguments": fragment},
			}},
		}, nil)
	}
	s.writeChunk(map[string]any{}, strPtr("tool_calls"))
	s.done()
}

func (s *chunkStream) writeChunk(delta map[string]any, finishReason *string) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  s.model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finishReason,
		}},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *chunkStream) done() {
	fmt.Fprintf(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

func strPtr(s string) *string { return &s }
