package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/store"
)

// fakeRunner is a scripted TurnRunner. It writes its events and then
// returns err, optionally blocking on the request context first.
type fakeRunner struct {
	mu         sync.Mutex
	events     []api.StreamEvent
	err        error
	blockOnCtx bool
	started    chan struct{}
	gotTurn    *api.TurnRequest
	gotConfirm *api.ConfirmRequest
}

func (f *fakeRunner) RunTurn(ctx context.Context, req *api.TurnRequest, w EventWriter) error {
	f.mu.Lock()
	f.gotTurn = req
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	for _, ev := range f.events {
		if err := w.WriteEvent(ctx, ev); err != nil {
			return err
		}
	}
	if f.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeRunner) ExecuteConfirmed(ctx context.Context, req *api.ConfirmRequest, w EventWriter) error {
	f.mu.Lock()
	f.gotConfirm = req
	f.mu.Unlock()
	for _, ev := range f.events {
		if err := w.WriteEvent(ctx, ev); err != nil {
			return err
		}
	}
	return f.err
}

func newTestAdapter(t *testing.T, runner *fakeRunner) (*Adapter, *store.ChatStore) {
	t.Helper()
	chats := store.NewChatStore()
	return NewAdapter(runner, chats, DefaultConfig()), chats
}

func postJSON(t *testing.T, h http.Handler, path, namespace string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	if namespace != "" {
		req.Header.Set(NamespaceHeader, namespace)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// parseFrames splits an SSE body into its data payloads.
func parseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, block := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		if block == "" {
			continue
		}
		payload, ok := strings.CutPrefix(block, "data: ")
		if !ok {
			t.Fatalf("frame without data prefix: %q", block)
		}
		frames = append(frames, payload)
	}
	return frames
}

func TestTurnStreamFormat(t *testing.T) {
	runner := &fakeRunner{events: []api.StreamEvent{
		api.TokenEvent("Hel"),
		api.TokenEvent("lo"),
	}}
	adapter, _ := newTestAdapter(t, runner)

	rec := postJSON(t, adapter.Handler(), "/api/chat/completions", "",
		api.TurnRequest{Content: "hi", BotName: "assistant"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if strings.Contains(rec.Body.String(), "event:") {
		t.Errorf("body contains event: lines: %q", rec.Body.String())
	}

	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3: %v", len(frames), frames)
	}
	if frames[2] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[2])
	}

	var ev api.StreamEvent
	if err := json.Unmarshal([]byte(frames[0]), &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if ev.Type != api.EventToken || ev.Text != "Hel" {
		t.Errorf("first event = %+v, want token %q", ev, "Hel")
	}
}

func TestTurnNamespaceFromHeader(t *testing.T) {
	runner := &fakeRunner{}
	adapter, _ := newTestAdapter(t, runner)

	postJSON(t, adapter.Handler(), "/api/chat/completions", "alice",
		api.TurnRequest{Content: "hi", BotName: "assistant"})
	if runner.gotTurn.Namespace != "alice" {
		t.Errorf("namespace = %q, want alice", runner.gotTurn.Namespace)
	}

	postJSON(t, adapter.Handler(), "/api/chat/completions", "",
		api.TurnRequest{Content: "hi", BotName: "assistant"})
	if runner.gotTurn.Namespace != DefaultNamespace {
		t.Errorf("namespace = %q, want %q", runner.gotTurn.Namespace, DefaultNamespace)
	}
}

func TestTurnErrorBeforeStreaming(t *testing.T) {
	runner := &fakeRunner{err: api.NewBotNotFoundError("ghost")}
	adapter, _ := newTestAdapter(t, runner)

	rec := postJSON(t, adapter.Handler(), "/api/chat/completions", "",
		api.TurnRequest{Content: "hi", BotName: "ghost"})

	// Even a turn that fails before producing output answers as a
	// stream: the error arrives as an event, not as an HTTP error.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %v", len(frames), frames)
	}
	var ev api.StreamEvent
	if err := json.Unmarshal([]byte(frames[0]), &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if ev.Type != api.EventError || ev.Error == nil || ev.Error.Code != api.CodeBotNotFound {
		t.Errorf("first event = %+v, want bot_not_found error", ev)
	}
	if frames[1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[1])
	}
}

func TestConfirmErrorBeforeStreaming(t *testing.T) {
	runner := &fakeRunner{err: api.NewToolNotFoundError("tavily", "search")}
	adapter, _ := newTestAdapter(t, runner)

	rec := postJSON(t, adapter.Handler(), "/api/tool/confirm", "",
		api.ConfirmRequest{BotName: "assistant", Server: "tavily", Tool: "search"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %v", len(frames), frames)
	}
	var ev api.StreamEvent
	if err := json.Unmarshal([]byte(frames[0]), &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if ev.Type != api.EventError || ev.Error == nil || ev.Error.Code != api.CodeToolNotFound {
		t.Errorf("first event = %+v, want tool_not_found error", ev)
	}
	if frames[1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[1])
	}
}

func TestTurnErrorAfterStreaming(t *testing.T) {
	runner := &fakeRunner{
		events: []api.StreamEvent{api.TokenEvent("partial")},
		err:    api.NewProviderUnavailableError("backend closed the connection"),
	}
	adapter, _ := newTestAdapter(t, runner)

	rec := postJSON(t, adapter.Handler(), "/api/chat/completions", "",
		api.TurnRequest{Content: "hi", BotName: "assistant"})

	// Streaming already committed the 200; the failure arrives as an
	// error event before the sentinel.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3: %v", len(frames), frames)
	}
	var ev api.StreamEvent
	if err := json.Unmarshal([]byte(frames[1]), &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if ev.Type != api.EventError || ev.Error == nil || ev.Error.Code != api.CodeProviderUnavailable {
		t.Errorf("second event = %+v, want provider_unavailable error", ev)
	}
	if frames[2] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[2])
	}
}

func TestTurnRejectsInvalidBody(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("wrong content type: status = %d, want 415", rec.Code)
	}
}

func TestTurnRejectsOversizedBody(t *testing.T) {
	runner := &fakeRunner{}
	chats := store.NewChatStore()
	adapter := NewAdapter(runner, chats, Config{MaxBodySize: 64})

	rec := postJSON(t, adapter.Handler(), "/api/chat/completions", "",
		api.TurnRequest{Content: strings.Repeat("x", 256), BotName: "assistant"})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestConfirmStream(t *testing.T) {
	msg := api.Message{ID: api.NewMessageID(), Role: api.RoleUser, Server: "files", Tool: "delete_file"}
	runner := &fakeRunner{events: []api.StreamEvent{{Type: api.EventMessage, Message: &msg}}}
	adapter, _ := newTestAdapter(t, runner)

	rec := postJSON(t, adapter.Handler(), "/api/tool/confirm", "alice",
		api.ConfirmRequest{BotName: "assistant", Server: "files", Tool: "delete_file"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if runner.gotConfirm.Namespace != "alice" {
		t.Errorf("namespace = %q, want alice", runner.gotConfirm.Namespace)
	}
	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 2 || frames[1] != "[DONE]" {
		t.Fatalf("frames = %v, want message + [DONE]", frames)
	}
	var ev api.StreamEvent
	if err := json.Unmarshal([]byte(frames[0]), &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if ev.Type != api.EventMessage || ev.Message == nil || ev.Message.Tool != "delete_file" {
		t.Errorf("event = %+v, want message with tool delete_file", ev)
	}
}

func TestGetChat(t *testing.T) {
	adapter, chats := newTestAdapter(t, &fakeRunner{})
	if _, err := chats.Append("alice", "chat_123", api.Message{ID: "msg_1", Role: api.RoleUser}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chats/chat_123", nil)
	req.Header.Set(NamespaceHeader, "alice")
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got api.Chat
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal chat: %v", err)
	}
	if got.ID != "chat_123" || len(got.Messages) != 1 {
		t.Errorf("chat = %+v, want chat_123 with one message", got)
	}
}

func TestGetChatNotFound(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/chats/chat_missing", nil)
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if resp.Error.Code != api.CodeChatNotFound {
		t.Errorf("code = %q, want %q", resp.Error.Code, api.CodeChatNotFound)
	}
}

func TestGetChatNamespaceIsolation(t *testing.T) {
	adapter, chats := newTestAdapter(t, &fakeRunner{})
	chats.GetOrCreate("alice", "chat_123")

	req := httptest.NewRequest(http.MethodGet, "/api/chats/chat_123", nil)
	req.Header.Set(NamespaceHeader, "bob")
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-namespace status = %d, want 404", rec.Code)
	}
}

func TestListChats(t *testing.T) {
	adapter, chats := newTestAdapter(t, &fakeRunner{})
	if _, err := chats.Append("alice", "chat_a", api.Message{ID: "msg_1", Role: api.RoleUser, Content: api.TextContent("find the report")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := chats.Append("alice", "chat_b", api.Message{ID: "msg_2", Role: api.RoleUser, Content: api.TextContent("hello there")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chats?search=report&limit=10", nil)
	req.Header.Set(NamespaceHeader, "alice")
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result store.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Total != 1 || len(result.Chats) != 1 {
		t.Errorf("result = %+v, want one matching chat", result)
	}
}

func TestListChatsRejectsBadPaging(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeRunner{})

	for _, path := range []string{"/api/chats?page=0", "/api/chats?page=x", "/api/chats?limit=-1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		adapter.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestCancelTurn(t *testing.T) {
	runner := &fakeRunner{blockOnCtx: true, started: make(chan struct{})}
	adapter, chats := newTestAdapter(t, runner)
	chats.GetOrCreate("alice", "chat_123")

	done := make(chan struct{})
	go func() {
		defer close(done)
		postJSON(t, adapter.Handler(), "/api/chat/completions", "alice",
			api.TurnRequest{Content: "hi", BotName: "assistant", ChatID: "chat_123"})
	}()

	<-runner.started

	req := httptest.NewRequest(http.MethodDelete, "/api/chats/chat_123/turn", nil)
	req.Header.Set(NamespaceHeader, "alice")
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not cancelled")
	}
}

func TestCancelTurnIdleChat(t *testing.T) {
	adapter, chats := newTestAdapter(t, &fakeRunner{})
	chats.GetOrCreate("alice", "chat_123")

	req := httptest.NewRequest(http.MethodDelete, "/api/chats/chat_123/turn", nil)
	req.Header.Set(NamespaceHeader, "alice")
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("idle chat: status = %d, want 204", rec.Code)
	}
}

func TestCancelTurnUnknownChat(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodDelete, "/api/chats/chat_missing/turn", nil)
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	adapter.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	cases := map[api.ErrorCode]int{
		api.CodeInvalidRequest:        http.StatusBadRequest,
		api.CodeBotNotFound:           http.StatusNotFound,
		api.CodeChatNotFound:          http.StatusNotFound,
		api.CodeMessageNotFound:       http.StatusNotFound,
		api.CodeToolNotFound:          http.StatusNotFound,
		api.CodeTurnInProgress:        http.StatusConflict,
		api.CodeProviderUnavailable:   http.StatusBadGateway,
		api.CodeToolServerUnreachable: http.StatusBadGateway,
		api.CodeProviderProtocolError: http.StatusInternalServerError,
		api.CodeTurnLimitExceeded:     http.StatusInternalServerError,
		api.CodeServerError:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		got := HTTPStatusFromError(&api.ChatError{Code: code})
		if got != want {
			t.Errorf("%s: status = %d, want %d", code, got, want)
		}
	}
}
