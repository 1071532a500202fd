// Package engine orchestrates conversational turns: it resolves the
// bot, streams provider output to the client, dispatches tool calls,
// feeds results back for further rounds, and commits the transcript.
package engine
