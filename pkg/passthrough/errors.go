package passthrough

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/proxy/types"
)

// ProxyError is the uniform client-facing error. Every error leaving the
// forwarding path is converted to one by ToProxyError.
type ProxyError struct {
	Message string
	Type    string
	Param   string
	Code    int
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s (%s, param %s): %s", http.StatusText(e.Code), e.Type, e.Param, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", http.StatusText(e.Code), e.Type, e.Message)
}

// StatusCode returns the HTTP status sent to the client.
func (e *ProxyError) StatusCode() int {
	if e.Code < 100 || e.Code > 599 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// ErrorType returns the error category.
func (e *ProxyError) ErrorType() string { return e.Type }

// ErrorParam returns the offending parameter, if any.
func (e *ProxyError) ErrorParam() string { return e.Param }

// Response renders the error envelope.
func (e *ProxyError) Response() *types.ErrorResponse {
	return types.NewErrorResponse(e.StatusCode(), e.Message, e.Type, e.Param)
}

// UpstreamError is a non-2xx upstream response.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.detail())
}

func (e *UpstreamError) detail() string {
	if d := strings.TrimSpace(string(e.Body)); d != "" {
		return d
	}
	return http.StatusText(e.StatusCode)
}

// ConfigError reports an endpoint definition that cannot be routed.
type ConfigError struct {
	EndpointID string
	Path       string
	Field      string
	Message    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("endpoint %s (%s): %s: %s", e.EndpointID, e.Path, e.Field, e.Message)
}

// ErrorType implements the status-carrying error contract.
func (e *ConfigError) ErrorType() string { return types.ErrorTypeConfiguration }

// ErrorParam names the offending field.
func (e *ConfigError) ErrorParam() string { return e.Field }

// StatusCode reports a client error: a definition submitted through the
// management API is rejected with 400.
func (e *ConfigError) StatusCode() int { return http.StatusBadRequest }

type statusCoder interface {
	StatusCode() int
}

type errorTyper interface {
	ErrorType() string
}

type errorParamer interface {
	ErrorParam() string
}

// ToProxyError maps err to the client-facing shape.
//
// Upstream errors keep the upstream status and body. Errors carrying their
// own status code (and optionally type and param) keep them. Anything else
// becomes a 500.
func ToProxyError(err error) *ProxyError {
	if err == nil {
		return nil
	}

	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return &ProxyError{
			Message: ue.detail(),
			Type:    types.ErrorTypeUpstream,
			Code:    ue.StatusCode,
		}
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &ProxyError{
			Message: fmt.Sprintf("request body exceeds %d bytes", mbe.Limit),
			Type:    types.ErrorTypeRequestTooLarge,
			Code:    http.StatusRequestEntityTooLarge,
		}
	}

	if errors.Is(err, endpoints.ErrNotFound) {
		return &ProxyError{
			Message: err.Error(),
			Type:    types.ErrorTypeNotFound,
			Param:   "endpoint_id",
			Code:    http.StatusNotFound,
		}
	}

	var ve *endpoints.ValidationError
	if errors.As(err, &ve) {
		return &ProxyError{
			Message: ve.Message,
			Type:    types.ErrorTypeInvalidRequest,
			Param:   ve.Field,
			Code:    http.StatusBadRequest,
		}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		out := &ProxyError{
			Message: err.Error(),
			Type:    types.ErrorTypeServerError,
			Code:    sc.StatusCode(),
		}
		var et errorTyper
		if errors.As(err, &et) && et.ErrorType() != "" {
			out.Type = et.ErrorType()
		}
		var ep errorParamer
		if errors.As(err, &ep) {
			out.Param = ep.ErrorParam()
		}
		return out
	}

	return &ProxyError{
		Message: fmt.Sprintf("internal server error: %v", err),
		Type:    types.ErrorTypeServerError,
		Code:    http.StatusInternalServerError,
	}
}

// WriteError writes err to w in the uniform envelope.
func WriteError(w http.ResponseWriter, err error) {
	types.WriteError(w, ToProxyError(err).Response())
}
