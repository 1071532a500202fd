// Package provider contains the inference backend abstraction and the
// OpenAI-compatible streaming client.
//
// A Provider turns a prepared request into a stream of events: text and
// reasoning deltas while tokens arrive, fully assembled tool calls when
// the model requests execution, and a terminal done or error event. The
// Factory resolves the right client for a bot configuration, applying
// fallback credentials when the bot carries none of its own.
package provider
