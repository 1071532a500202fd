package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/debug"
)

// DefaultTimeout bounds a provider call when neither the bot nor the
// process configuration specifies one.
const DefaultTimeout = 120 * time.Second

// OpenAIClient speaks the OpenAI-compatible Chat Completions protocol
// against a single backend endpoint.
type OpenAIClient struct {
	name       string
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

var _ Provider = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the given endpoint. The timeout
// bounds the whole streaming call, including the stream body; zero
// means DefaultTimeout.
func NewOpenAIClient(name, baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAIClient{
		name: name,
		// The stream can outlive any fixed response-header deadline, so
		// lifecycle control uses a per-call context instead of
		// http.Client.Timeout.
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string { return c.name }

// Close releases idle connections.
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Stream performs streaming inference. The returned channel is closed
// when the backend stream completes, fails, or the context is
// cancelled.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	body, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return nil, api.NewServerError("marshaling provider request: " + err.Error())
	}
	debug.Log("providers", "chat completions request",
		"provider", c.name, "model", req.Model,
		"messages", len(req.Messages), "tools", len(req.Tools))
	debug.Trace("providers", "request body", "body", debug.Truncate(string(body), 4096))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, api.NewServerError("building provider request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, mapTransportError(ctx, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer cancel()
		defer httpResp.Body.Close()
		return nil, mapStatusError(httpResp)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer cancel()
		defer httpResp.Body.Close()
		parseStream(callCtx, httpResp.Body, ch)
	}()
	return ch, nil
}

// buildChatRequest translates the provider request to the Chat
// Completions wire format.
func buildChatRequest(req *Request) *chatRequest {
	out := &chatRequest{
		Model:           req.Model,
		Stream:          true,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.ReasoningEffort,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// mapTransportError classifies a connection-level failure. Timeouts and
// refused connections are ProviderUnavailable; caller cancellation is
// passed through untouched.
func mapTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return api.NewProviderUnavailableError("provider call timed out")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewProviderUnavailableError("provider call timed out")
	}
	return api.NewProviderUnavailableError("provider unreachable: " + err.Error())
}

// mapStatusError classifies a non-2xx backend response. Overload and
// server-side failures are ProviderUnavailable; other client-side
// rejections indicate a request the backend could not understand.
func mapStatusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout:
		return api.NewProviderUnavailableError(msg)
	default:
		return api.NewProviderProtocolError(msg)
	}
}
