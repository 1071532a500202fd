package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plauder-dev/plauder/pkg/api"
)

// HTTPStatusFromError maps a ChatError code to an HTTP status code.
func HTTPStatusFromError(err *api.ChatError) int {
	switch err.Code {
	case api.CodeInvalidRequest:
		return http.StatusBadRequest
	case api.CodeBotNotFound, api.CodeChatNotFound, api.CodeMessageNotFound, api.CodeToolNotFound:
		return http.StatusNotFound
	case api.CodeTurnInProgress:
		return http.StatusConflict
	case api.CodeProviderUnavailable, api.CodeToolServerUnreachable:
		return http.StatusBadGateway
	case api.CodeProviderProtocolError, api.CodeToolExecutionError,
		api.CodeTurnLimitExceeded, api.CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a JSON error response, deriving the status code
// from the error. Non-ChatError values are wrapped as server errors.
func WriteError(w http.ResponseWriter, err error) {
	cerr := asChatError(err)
	WriteErrorResponse(w, cerr, HTTPStatusFromError(cerr))
}

// WriteErrorResponse writes a JSON error response with an explicit
// status code.
func WriteErrorResponse(w http.ResponseWriter, cerr *api.ChatError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: cerr})
}

// asChatError coerces any error into a ChatError.
func asChatError(err error) *api.ChatError {
	var cerr *api.ChatError
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return api.NewServerError("request cancelled")
	}
	return api.NewServerError(err.Error())
}
