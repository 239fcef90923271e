package types

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the envelope every client-facing error is written in.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error (see the ErrorType constants).
	Type string `json:"type"`

	// Param names the offending parameter, if any.
	Param string `json:"param"`

	// Code is the HTTP status code rendered as a string.
	Code string `json:"code"`
}

// Error type constants.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeAuthentication indicates an authentication failure (401).
	ErrorTypeAuthentication = "authentication_error"

	// ErrorTypeNotFound indicates a resource or route was not found (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeMethodNotAllowed indicates the route does not accept the method (405).
	ErrorTypeMethodNotAllowed = "method_not_allowed"

	// ErrorTypeRequestTooLarge indicates the request body exceeded the limit (413).
	ErrorTypeRequestTooLarge = "request_too_large"

	// ErrorTypeConfiguration indicates an invalid endpoint configuration.
	ErrorTypeConfiguration = "configuration_error"

	// ErrorTypeUpstream indicates the upstream answered with a non-2xx status.
	ErrorTypeUpstream = "upstream_error"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "internal_error"
)

// NewErrorResponse creates an error envelope for status.
func NewErrorResponse(status int, message, errorType, param string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    strconv.Itoa(status),
		},
	}
}

// StatusCode parses Code back into an HTTP status, defaulting to 500.
func (e *ErrorDetail) StatusCode() int {
	status, err := strconv.Atoi(e.Code)
	if err != nil || status < 100 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

// WriteError writes the envelope with its status code.
func WriteError(w http.ResponseWriter, resp *ErrorResponse) {
	WriteJSON(w, resp.Error.StatusCode(), resp)
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
