package httpapi

import (
	"encoding/json"
	"net/http"

	"pointd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps a service error to a status and the message shown to the
// client. 5xx details stay in the logs.
func statusFor(err error) (int, string) {
	code := http.StatusInternalServerError
	if he, ok := err.(HTTPError); ok {
		code = he.StatusCode()
	}
	if code >= 500 && code != http.StatusServiceUnavailable {
		return code, "internal error"
	}
	return code, err.Error()
}
