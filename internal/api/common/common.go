// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stacklok/plugin-mirror/internal/service"
)

// ErrorBody is the payload of an error response
type ErrorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorResponse wraps an ErrorBody under the "error" key
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: ErrorBody{Message: message}}, statusCode)
}

// WriteError maps err to a status code and writes it. The error text is only
// exposed as details when devMode is set.
func WriteError(w http.ResponseWriter, err error, devMode bool) {
	statusCode := StatusCode(err)
	body := ErrorBody{Message: http.StatusText(statusCode)}
	if devMode {
		body.Details = err.Error()
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", statusCode, "error", err)
	}
	WriteJSONResponse(w, ErrorResponse{Error: body}, statusCode)
}

// StatusCode returns the HTTP status for a service error
func StatusCode(err error) int {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPluginNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
