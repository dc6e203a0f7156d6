package server

import (
	"net/http"

	"github.com/teranos/samplegen/errors"
)

// statusForError maps the error taxonomy to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsServiceUnavailableError(err):
		return http.StatusServiceUnavailable
	case errors.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	case errors.IsInferenceFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the client-facing text: the message plus any hints
func errorMessage(err error) string {
	msg := err.Error()
	if hints := errors.FlattenHints(err); hints != "" {
		msg += " (" + hints + ")"
	}
	return msg
}
