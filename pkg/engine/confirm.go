package engine

import (
	"context"
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/observability"
	"github.com/plauder-dev/plauder/pkg/transport"
)

// ExecuteConfirmed runs a previously gated tool call after explicit
// approval. It executes directly, outside any turn, and emits the
// outcome as one provenance-tagged message without touching a
// transcript: the client decides whether and where to feed it back
// into a conversation.
func (e *Engine) ExecuteConfirmed(ctx context.Context, req *api.ConfirmRequest, w transport.EventWriter) error {
	if req.Server == "" || req.Tool == "" {
		return api.NewInvalidRequestError("server and tool are required")
	}
	if req.BotName != "" {
		// The bot is validated so a stale client cannot confirm against
		// a deleted configuration.
		if _, err := e.resolveBot(req.Namespace, req.BotName); err != nil {
			return err
		}
	}

	result, err := e.gateway.Execute(ctx, req.Namespace, req.Server, req.Tool, req.Args)
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ToolExecutionsTotal.WithLabelValues(req.Server, req.Tool, status).Inc()
	if err != nil {
		return err
	}

	msg := api.Message{
		Role:      api.RoleUser,
		Content:   api.TextContent(result),
		Timestamp: time.Now(),
		ID:        api.NewMessageID(),
		Server:    req.Server,
		Tool:      req.Tool,
		Arguments: req.Args,
	}
	return w.WriteEvent(ctx, api.StreamEvent{Type: api.EventMessage, Message: &msg})
}
