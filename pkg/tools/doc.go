// Package tools routes tool discovery and execution to remote MCP
// servers.
//
// The Gateway resolves a (namespace, server) pair to a live MCP
// session, discovers the server's tools, and executes calls. Sessions
// are cached per namespace and server and re-dialed when the server
// configuration changes. The ConfirmationGate decides which tool calls
// must wait for explicit approval instead of executing inside a turn.
package tools
