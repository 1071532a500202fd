// Package store provides the in-memory, namespace-partitioned state of
// the gateway: conversation transcripts plus the bot and tool-server
// configuration collections. Each store is an explicitly owned object
// constructed at startup and passed into its consumers; there is no
// ambient global state. Namespaces partition everything with no
// cross-namespace visibility.
//
// Conversation state is process-memory only and carries no durability
// guarantee across restarts.
package store
