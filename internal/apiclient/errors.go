package apiclient

import (
	"errors"
	"net/http"
)

// ErrTransport is returned when the remote API could not be reached or its
// response could not be read. Its text is the message shown to visitors.
var ErrTransport = errors.New("network error, please try again")

// APIError is a failure reported by the remote API, either through an error
// status or through a failure flag in a 2xx envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NotFound reports whether the remote API answered 404.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Unauthorized reports whether the remote API rejected the session.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Message returns the text stored in a store's request state for err:
// the backend message verbatim for remote failures, the generic network
// message for transport failures, fallback otherwise.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrTransport) {
		return ErrTransport.Error()
	}
	return fallback
}

// StatusOf maps err to the HTTP status a handler should answer with.
func StatusOf(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status >= 400:
		return apiErr.Status
	case errors.As(err, &apiErr):
		// failure flag on a 2xx envelope
		return http.StatusBadGateway
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
