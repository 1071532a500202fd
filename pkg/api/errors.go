package api

import "fmt"

// ErrorCode classifies a failure for clients.
type ErrorCode string

const (
	CodeInvalidRequest        ErrorCode = "invalid_request"
	CodeBotNotFound           ErrorCode = "bot_not_found"
	CodeChatNotFound          ErrorCode = "chat_not_found"
	CodeMessageNotFound       ErrorCode = "message_not_found"
	CodeProviderUnavailable   ErrorCode = "provider_unavailable"
	CodeProviderProtocolError ErrorCode = "provider_protocol_error"
	CodeToolServerUnreachable ErrorCode = "tool_server_unreachable"
	CodeToolNotFound          ErrorCode = "tool_not_found"
	CodeToolExecutionError    ErrorCode = "tool_execution_error"
	CodeTurnLimitExceeded     ErrorCode = "turn_limit_exceeded"
	CodeTurnInProgress        ErrorCode = "turn_in_progress"
	CodeServerError           ErrorCode = "server_error"
)

// ChatError is a structured failure. Tool-related errors carry the
// originating server and tool so clients can decide whether to retry
// that one call.
type ChatError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Server  string    `json:"server,omitempty"`
	Tool    string    `json:"tool,omitempty"`
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Server != "" && e.Tool != "" {
		return fmt.Sprintf("%s: %s (server: %s, tool: %s)", e.Code, e.Message, e.Server, e.Tool)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse wraps a ChatError as the top-level JSON error body.
type ErrorResponse struct {
	Error *ChatError `json:"error"`
}

// NewInvalidRequestError reports a malformed or incomplete request.
func NewInvalidRequestError(message string) *ChatError {
	return &ChatError{Code: CodeInvalidRequest, Message: message}
}

// NewBotNotFoundError reports an unknown bot name.
func NewBotNotFoundError(name string) *ChatError {
	return &ChatError{Code: CodeBotNotFound, Message: fmt.Sprintf("bot %q not found", name)}
}

// NewChatNotFoundError reports an unknown chat id.
func NewChatNotFoundError(id string) *ChatError {
	return &ChatError{Code: CodeChatNotFound, Message: fmt.Sprintf("chat %q not found", id)}
}

// NewMessageNotFoundError reports a missing or role-mismatched message id.
func NewMessageNotFoundError(id string) *ChatError {
	return &ChatError{Code: CodeMessageNotFound, Message: fmt.Sprintf("user message %q not found", id)}
}

// NewProviderUnavailableError reports a provider connection or timeout
// failure. Turn-fatal, not retried.
func NewProviderUnavailableError(message string) *ChatError {
	return &ChatError{Code: CodeProviderUnavailable, Message: message}
}

// NewProviderProtocolError reports a malformed provider response.
func NewProviderProtocolError(message string) *ChatError {
	return &ChatError{Code: CodeProviderProtocolError, Message: message}
}

// NewToolServerUnreachableError reports a tool server that could not be
// resolved or connected.
func NewToolServerUnreachableError(server, message string) *ChatError {
	return &ChatError{Code: CodeToolServerUnreachable, Message: message, Server: server}
}

// NewToolNotFoundError reports a tool the named server does not provide.
func NewToolNotFoundError(server, tool string) *ChatError {
	return &ChatError{
		Code:    CodeToolNotFound,
		Message: fmt.Sprintf("server %q provides no tool %q", server, tool),
		Server:  server,
		Tool:    tool,
	}
}

// NewToolExecutionError reports a tool call that reached the server but
// failed to execute.
func NewToolExecutionError(server, tool, message string) *ChatError {
	return &ChatError{Code: CodeToolExecutionError, Message: message, Server: server, Tool: tool}
}

// NewTurnLimitExceededError reports a turn that hit the tool-call
// iteration bound.
func NewTurnLimitExceededError(limit int) *ChatError {
	return &ChatError{
		Code:    CodeTurnLimitExceeded,
		Message: fmt.Sprintf("turn exceeded %d tool-call iterations", limit),
	}
}

// NewTurnInProgressError reports a second concurrent turn on one chat.
func NewTurnInProgressError(chatID string) *ChatError {
	return &ChatError{
		Code:    CodeTurnInProgress,
		Message: fmt.Sprintf("a turn is already running for chat %q", chatID),
	}
}

// NewServerError reports an internal failure.
func NewServerError(message string) *ChatError {
	return &ChatError{Code: CodeServerError, Message: message}
}
