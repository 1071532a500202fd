package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/observability"
	"github.com/plauder-dev/plauder/pkg/store"
)

// NamespaceHeader names the caller's namespace. Absent means
// DefaultNamespace.
const (
	NamespaceHeader  = "X-User"
	DefaultNamespace = "default"
)

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// Adapter serves the chat API over HTTP.
type Adapter struct {
	runner   TurnRunner
	chats    ChatReader
	inflight *InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// NewAdapter creates an HTTP adapter dispatching turns to the given
// runner and reading transcripts from chats.
func NewAdapter(runner TurnRunner, chats ChatReader, cfg Config) *Adapter {
	a := &Adapter{
		runner:   runner,
		chats:    chats,
		inflight: NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /api/chat/completions", a.handleTurn)
	a.mux.HandleFunc("POST /api/tool/confirm", a.handleConfirm)
	a.mux.HandleFunc("GET /api/chats", a.handleListChats)
	a.mux.HandleFunc("GET /api/chats/{id}", a.handleGetChat)
	a.mux.HandleFunc("DELETE /api/chats/{id}/turn", a.handleCancelTurn)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handler returns the adapter's http.Handler, without outer middleware.
// Callers compose Recovery, RequestID, Logging, and metrics around it.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// namespaceFrom resolves the caller's namespace from the X-User header.
func namespaceFrom(r *http.Request) string {
	if ns := r.Header.Get(NamespaceHeader); ns != "" {
		return ns
	}
	return DefaultNamespace
}

// handleTurn handles POST /api/chat/completions.
func (a *Adapter) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req api.TurnRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	req.Namespace = namespaceFrom(r)

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Cancellation is addressed by chat id; a turn that lets the server
	// assign the id cannot be cancelled by a third party, which is fine
	// because nobody else knows the id yet either.
	if req.ChatID != "" {
		a.inflight.Register(req.Namespace, req.ChatID, cancel)
		defer a.inflight.Remove(req.Namespace, req.ChatID)
	}

	sw := newSSEEventWriter(w)
	a.finishStream(sw, a.runner.RunTurn(ctx, &req, sw))
}

// handleConfirm handles POST /api/tool/confirm.
func (a *Adapter) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req api.ConfirmRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	req.Namespace = namespaceFrom(r)

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	sw := newSSEEventWriter(w)
	a.finishStream(sw, a.runner.ExecuteConfirmed(r.Context(), &req, sw))
}

// finishStream terminates a stream request. A failed turn surfaces as
// an error event followed by the [DONE] sentinel, whether or not any
// events went out first: by the time the runner reports back, the
// response is an event stream, and the client reads diagnoses from it,
// not from the status line.
func (a *Adapter) finishStream(sw *sseEventWriter, err error) {
	if err != nil {
		_ = sw.WriteEvent(context.Background(), api.ErrorEvent(asChatError(err)))
	}
	_ = sw.Done()
}

// decodeBody validates and decodes a JSON request body.
func (a *Adapter) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
		WriteErrorResponse(w,
			api.NewInvalidRequestError("Content-Type must be application/json"),
			http.StatusUnsupportedMediaType)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w,
				api.NewInvalidRequestError(fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return false
		}
		WriteErrorResponse(w,
			api.NewInvalidRequestError("invalid JSON: "+err.Error()),
			http.StatusBadRequest)
		return false
	}
	return true
}

// handleListChats handles GET /api/chats.
func (a *Adapter) handleListChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{Search: q.Get("search")}

	if pageStr := q.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			WriteError(w, api.NewInvalidRequestError("page must be a positive integer"))
			return
		}
		opts.Page = page
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			WriteError(w, api.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		opts.Limit = limit
	}

	result, err := a.chats.List(namespaceFrom(r), opts)
	if err != nil {
		WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleGetChat handles GET /api/chats/{id}.
func (a *Adapter) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chat, err := a.chats.Get(namespaceFrom(r), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, api.NewChatNotFoundError(id))
		} else {
			WriteError(w, err)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chat)
}

// handleCancelTurn handles DELETE /api/chats/{id}/turn. Cancelling is
// idempotent: a chat with no running turn still answers 204.
func (a *Adapter) handleCancelTurn(w http.ResponseWriter, r *http.Request) {
	ns := namespaceFrom(r)
	id := r.PathValue("id")

	if a.inflight.Cancel(ns, id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if _, err := a.chats.Get(ns, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, api.NewChatNotFoundError(id))
			return
		}
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
