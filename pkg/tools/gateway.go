package tools

import (
	"context"

	"github.com/plauder-dev/plauder/pkg/api"
)

// ServerResolver resolves a tool server configuration by namespace and
// name. Implemented by the tool server store.
type ServerResolver interface {
	GetServer(namespace, name string) (api.ToolServerConfig, error)
}

// Gateway discovers and executes tools on remote servers.
type Gateway interface {
	// ListTools returns the tools the named server provides.
	ListTools(ctx context.Context, namespace, server string) ([]api.ToolDescriptor, error)

	// Execute runs one tool call and returns its textual result. When
	// the tool itself reports a failure, the result text is returned
	// together with a tool_execution_error so the caller can record the
	// failed output.
	Execute(ctx context.Context, namespace, server, tool string, args map[string]any) (string, error)

	// Close releases all live server sessions.
	Close() error
}

// ConfirmationGate decides whether a tool call needs explicit approval
// before it may execute.
type ConfirmationGate struct {
	resolver ServerResolver
}

// NewConfirmationGate creates a gate backed by the given resolver.
func NewConfirmationGate(resolver ServerResolver) *ConfirmationGate {
	return &ConfirmationGate{resolver: resolver}
}

// RequiresConfirmation reports whether the named tool is in the
// server's confirmation set. Unknown servers gate nothing; they fail
// before execution is attempted.
func (g *ConfirmationGate) RequiresConfirmation(namespace, server, tool string) bool {
	cfg, err := g.resolver.GetServer(namespace, server)
	if err != nil {
		return false
	}
	return cfg.RequiresConfirmation(tool)
}
