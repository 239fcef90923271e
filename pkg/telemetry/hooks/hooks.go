// Package hooks defines the telemetry callbacks invoked around every
// forwarded call and the dispatcher that runs them off the request path.
package hooks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mercator-hq/passthrough/pkg/security/auth"
)

// CallTypePassthrough is the call type reported for forwarded requests.
const CallTypePassthrough = "pass_through_endpoint"

// Hooks receives structured call telemetry.
//
// PreCall runs synchronously before the upstream call and may modify or
// reject the request data. Success and Failure run asynchronously once the
// outcome is known; their errors are logged and never reach the client.
type Hooks interface {
	PreCall(ctx context.Context, id *auth.Identity, data map[string]any, callType string) (map[string]any, error)
	Success(ctx context.Context, ev *SuccessEvent) error
	Failure(ctx context.Context, ev *FailureEvent) error
}

// Usage is token accounting extracted from a response.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Call describes the forwarded request common to both outcomes.
type Call struct {
	CallID     string
	EndpointID string
	Route      string
	Method     string
	TargetURL  string
	Flavor     string
	Streaming  bool
	Identity   *auth.Identity
	Metadata   map[string]any

	// RequestBody is the parsed outbound body: a map for JSON, a string
	// for bodies forwarded raw, nil for GET.
	RequestBody any

	CostPerRequest *float64
	StartTime      time.Time
}

// SuccessEvent is reported after a 2xx upstream response has been relayed.
type SuccessEvent struct {
	Call

	StatusCode      int
	ResponseHeaders http.Header
	ResponseBody    []byte
	Truncated       bool
	Model           string
	Usage           Usage
	EndTime         time.Time
}

// Duration returns the elapsed time of the call.
func (e *SuccessEvent) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// FailureEvent is reported for any error on the forwarding path.
type FailureEvent struct {
	Call

	StatusCode int
	ErrorType  string
	Err        error
	Trace      string
	EndTime    time.Time
}

// Duration returns the elapsed time until the failure.
func (e *FailureEvent) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// Nop implements Hooks with no behaviour. Embed it to implement a subset.
type Nop struct{}

func (Nop) PreCall(_ context.Context, _ *auth.Identity, data map[string]any, _ string) (map[string]any, error) {
	return data, nil
}

func (Nop) Success(context.Context, *SuccessEvent) error { return nil }

func (Nop) Failure(context.Context, *FailureEvent) error { return nil }

// Multi fans out to several hooks in order. PreCall threads the data
// through each hook and stops at the first rejection.
type Multi []Hooks

func (m Multi) PreCall(ctx context.Context, id *auth.Identity, data map[string]any, callType string) (map[string]any, error) {
	for _, h := range m {
		out, err := h.PreCall(ctx, id, data, callType)
		if err != nil {
			return nil, err
		}
		if out != nil {
			data = out
		}
	}
	return data, nil
}

func (m Multi) Success(ctx context.Context, ev *SuccessEvent) error {
	var errs []error
	for _, h := range m {
		if err := h.Success(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Failure(ctx context.Context, ev *FailureEvent) error {
	var errs []error
	for _, h := range m {
		if err := h.Failure(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
