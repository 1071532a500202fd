package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks running turn streams for explicit
// cancellation. It maps (namespace, chat id) to the turn's cancel
// function so a DELETE request can abort a stream mid-flight.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[inflightKey]context.CancelFunc
}

type inflightKey struct {
	namespace string
	chatID    string
}

// NewInFlightRegistry creates an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[inflightKey]context.CancelFunc)}
}

// Register adds a running turn. The cancel function is invoked when the
// turn is cancelled through Cancel.
func (r *InFlightRegistry) Register(namespace, chatID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[inflightKey{namespace, chatID}] = cancel
}

// Cancel aborts the chat's running turn. Reports false when no turn is
// in flight for the chat.
func (r *InFlightRegistry) Cancel(namespace, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := inflightKey{namespace, chatID}
	cancel, ok := r.entries[key]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, key)
	return true
}

// Remove drops a turn from the registry without cancelling it. Called
// when a stream completes normally.
func (r *InFlightRegistry) Remove(namespace, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, inflightKey{namespace, chatID})
}
