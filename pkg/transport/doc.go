// Package transport serves the chat API over HTTP and frames the
// engine's stream events as server-sent events.
//
// The Adapter routes requests, resolves the caller's namespace from the
// X-User header, and hands each turn to a TurnRunner together with an
// EventWriter that frames events as bare data lines:
//
//	data: {"type":"token","text":"..."}
//
// terminated by a data: [DONE] sentinel. A failed turn or confirmed
// execution surfaces as a {"type":"error"} event on the stream itself,
// even when it fails before producing any output; only malformed
// requests and the non-streaming endpoints answer with JSON errors and
// a mapped status code.
//
// HTTP-level middleware provides panic recovery, X-Request-ID
// propagation, and structured request logging via log/slog.
package transport
