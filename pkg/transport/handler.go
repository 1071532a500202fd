package transport

import (
	"context"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/store"
)

// TurnRunner is the engine contract the transport dispatches to.
type TurnRunner interface {
	// RunTurn executes one conversational turn, writing stream events
	// to w as they happen.
	RunTurn(ctx context.Context, req *api.TurnRequest, w EventWriter) error

	// ExecuteConfirmed runs an approved tool call outside any turn and
	// writes the outcome as a single message event.
	ExecuteConfirmed(ctx context.Context, req *api.ConfirmRequest, w EventWriter) error
}

// EventWriter receives stream events for one request.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev api.StreamEvent) error
}

// ChatReader is the read-side transcript access the HTTP surface needs.
// Implemented by store.ChatStore.
type ChatReader interface {
	Get(namespace, id string) (api.Chat, error)
	List(namespace string, opts store.ListOptions) (*store.ListResult, error)
}
