package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/debug"
)

// MCPGateway implements Gateway over the MCP protocol. One session is
// held per (namespace, server) pair and re-dialed when the server's
// URL or token changes.
type MCPGateway struct {
	resolver ServerResolver

	// dial is replaced in tests to connect over in-memory transports.
	dial func(cfg api.ToolServerConfig) (mcp.Transport, error)

	// mu guards the entries map only; dialing happens under the
	// per-entry lock so a slow server cannot stall calls to others.
	mu      sync.Mutex
	entries map[sessionKey]*serverEntry
}

var _ Gateway = (*MCPGateway)(nil)

type sessionKey struct {
	namespace string
	server    string
}

// serverEntry serializes connection management for one
// (namespace, server) pair.
type serverEntry struct {
	mu   sync.Mutex
	sess *serverSession
}

// serverSession is one live MCP connection with its discovered tools.
type serverSession struct {
	cfg     api.ToolServerConfig
	session *mcp.ClientSession
	tools   []api.ToolDescriptor
	byName  map[string]api.ToolDescriptor
}

// NewMCPGateway creates a gateway resolving servers through the given
// resolver.
func NewMCPGateway(resolver ServerResolver) *MCPGateway {
	g := &MCPGateway{
		resolver: resolver,
		entries:  make(map[sessionKey]*serverEntry),
	}
	g.dial = g.httpTransport
	return g
}

// httpTransport builds a streamable-HTTP transport for the configured
// server, attaching the bearer token when one is set.
func (g *MCPGateway) httpTransport(cfg api.ToolServerConfig) (mcp.Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("server %q has no URL", cfg.Name)
	}
	transport := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	if cfg.Token != "" {
		transport.HTTPClient = &http.Client{
			Transport: &bearerTransport{base: http.DefaultTransport, token: cfg.Token},
		}
	}
	return transport, nil
}

// bearerTransport adds a bearer Authorization header to every request.
type bearerTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// ListTools returns the tools the named server provides, connecting and
// discovering on first use.
func (g *MCPGateway) ListTools(ctx context.Context, namespace, server string) ([]api.ToolDescriptor, error) {
	sess, err := g.connect(ctx, namespace, server)
	if err != nil {
		return nil, err
	}
	out := make([]api.ToolDescriptor, len(sess.tools))
	copy(out, sess.tools)
	return out, nil
}

// Execute runs one tool call on the named server.
func (g *MCPGateway) Execute(ctx context.Context, namespace, server, tool string, args map[string]any) (string, error) {
	sess, err := g.connect(ctx, namespace, server)
	if err != nil {
		return "", err
	}
	if _, ok := sess.byName[tool]; !ok {
		return "", api.NewToolNotFoundError(server, tool)
	}

	debug.Log("tools", "executing tool", "namespace", namespace, "server", server, "tool", tool)
	result, err := sess.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return "", api.NewToolExecutionError(server, tool, err.Error())
	}

	text := resultText(result)
	if result.IsError {
		return text, api.NewToolExecutionError(server, tool, text)
	}
	return text, nil
}

// connect returns the live session for (namespace, server), dialing and
// discovering tools on first use. A cached session whose stored
// configuration no longer matches the resolver's is closed and redialed.
func (g *MCPGateway) connect(ctx context.Context, namespace, server string) (*serverSession, error) {
	cfg, err := g.resolver.GetServer(namespace, server)
	if err != nil {
		return nil, api.NewToolServerUnreachableError(server,
			fmt.Sprintf("tool server %q is not configured", server))
	}

	key := sessionKey{namespace: namespace, server: server}

	g.mu.Lock()
	entry, ok := g.entries[key]
	if !ok {
		entry = &serverEntry{}
		g.entries[key] = entry
	}
	g.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.sess != nil {
		if entry.sess.cfg.URL == cfg.URL && entry.sess.cfg.Token == cfg.Token {
			return entry.sess, nil
		}
		if err := entry.sess.session.Close(); err != nil {
			slog.Warn("closing stale tool server session", "server", server, "error", err)
		}
		entry.sess = nil
	}

	transport, err := g.dial(cfg)
	if err != nil {
		return nil, api.NewToolServerUnreachableError(server, err.Error())
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "plauder", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, api.NewToolServerUnreachableError(server,
			fmt.Sprintf("connecting to %q: %v", cfg.URL, err))
	}

	descriptors, byName, err := discoverTools(ctx, session, server)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			slog.Warn("closing tool server session after failed discovery",
				"server", server, "error", cerr)
		}
		return nil, err
	}

	sess := &serverSession{
		cfg:     cfg,
		session: session,
		tools:   descriptors,
		byName:  byName,
	}
	entry.sess = sess

	slog.Info("connected tool server",
		"namespace", namespace,
		"server", server,
		"tools", len(descriptors),
	)
	return sess, nil
}

// discoverTools lists the session's tools and converts them to
// descriptors.
func discoverTools(ctx context.Context, session *mcp.ClientSession, server string) ([]api.ToolDescriptor, map[string]api.ToolDescriptor, error) {
	var descriptors []api.ToolDescriptor
	byName := make(map[string]api.ToolDescriptor)

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, nil, api.NewToolServerUnreachableError(server,
				fmt.Sprintf("listing tools: %v", err))
		}
		td, convErr := convertTool(server, tool)
		if convErr != nil {
			return nil, nil, api.NewToolServerUnreachableError(server,
				fmt.Sprintf("converting tool %q: %v", tool.Name, convErr))
		}
		if _, exists := byName[td.Name]; exists {
			slog.Warn("duplicate tool name, keeping first", "server", server, "tool", td.Name)
			continue
		}
		descriptors = append(descriptors, td)
		byName[td.Name] = td
	}
	return descriptors, byName, nil
}

// convertTool converts an MCP tool to a ToolDescriptor.
func convertTool(server string, t *mcp.Tool) (api.ToolDescriptor, error) {
	var schema json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDescriptor{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		schema = data
	}
	return api.ToolDescriptor{
		Server:      server,
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}, nil
}

// resultText flattens a call result's text content.
func resultText(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}

// Close closes every live session.
func (g *MCPGateway) Close() error {
	g.mu.Lock()
	entries := make(map[sessionKey]*serverEntry, len(g.entries))
	for key, entry := range g.entries {
		entries[key] = entry
	}
	g.entries = make(map[sessionKey]*serverEntry)
	g.mu.Unlock()

	var lastErr error
	for key, entry := range entries {
		entry.mu.Lock()
		if entry.sess != nil {
			if err := entry.sess.session.Close(); err != nil {
				slog.Warn("closing tool server session",
					"namespace", key.namespace,
					"server", key.server,
					"error", err,
				)
				lastErr = err
			}
			entry.sess = nil
		}
		entry.mu.Unlock()
	}
	return lastErr
}
