package api

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/nerrad567/solar-gateway/internal/control"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "device_unavailable"
	ErrCodeDeviceRejected = "device_rejected"
	ErrCodeRateLimited    = "rate_limited"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceUnavailable writes a 503 error response.
func writeServiceUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeCommandError maps a control error to its HTTP status.
//
//	ErrInvalidArgument   → 400
//	ErrBusy              → 409
//	ErrDeviceRejected    → 502
//	ErrDeviceUnreachable → 503
//	anything else        → 500
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, control.ErrBusy):
		writeError(w, http.StatusConflict, ErrCodeConflict, "another command is in flight")
	case errors.Is(err, control.ErrDeviceRejected):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceRejected, err.Error())
	case errors.Is(err, control.ErrDeviceUnreachable):
		writeServiceUnavailable(w, "device unreachable")
	default:
		writeInternalError(w, "command failed")
	}
}
