// Package calllog persists one record per forwarded call.
//
// The Recorder implements the telemetry hooks: success and failure events
// are converted to Records and written to storage by a background worker,
// so a slow database never delays a response. Records older than the
// retention window are pruned on a cron schedule.
package calllog

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/passthrough/pkg/telemetry/hooks"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is a persisted call.
type Record struct {
	ID         string `json:"id"`
	CallID     string `json:"call_id"`
	EndpointID string `json:"endpoint_id"`
	Route      string `json:"route"`
	Method     string `json:"method"`
	TargetURL  string `json:"target_url"`
	Flavor     string `json:"flavor"`
	Streaming  bool   `json:"streaming"`

	Outcome    string `json:"outcome"`
	StatusCode int    `json:"status_code"`
	ErrorType  string `json:"error_type,omitempty"`
	Error      string `json:"error,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`

	Model            string   `json:"model,omitempty"`
	PromptTokens     int64    `json:"prompt_tokens"`
	CompletionTokens int64    `json:"completion_tokens"`
	TotalTokens      int64    `json:"total_tokens"`
	Cost             *float64 `json:"cost,omitempty"`

	UserID     string         `json:"user_id,omitempty"`
	TeamID     string         `json:"team_id,omitempty"`
	APIKeyHash string         `json:"api_key_hash,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	RequestBody  string `json:"request_body,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	Truncated    bool   `json:"truncated"`

	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DurationMS int64     `json:"duration_ms"`
}

func newRecord(call *hooks.Call, outcome string, end time.Time) *Record {
	r := &Record{
		ID:         uuid.NewString(),
		CallID:     call.CallID,
		EndpointID: call.EndpointID,
		Route:      call.Route,
		Method:     call.Method,
		TargetURL:  call.TargetURL,
		Flavor:     call.Flavor,
		Streaming:  call.Streaming,
		Outcome:    outcome,
		Cost:       call.CostPerRequest,
		Metadata:   call.Metadata,
		StartTime:  call.StartTime,
		EndTime:    end,
		DurationMS: end.Sub(call.StartTime).Milliseconds(),
	}
	if id := call.Identity; id != nil {
		r.UserID = id.UserID
		r.TeamID = id.TeamID
		r.APIKeyHash = id.APIKeyHash
	}
	return r
}

// FromSuccess builds a record from a success event. Bodies are cut to
// maxBody bytes; zero drops them.
func FromSuccess(ev *hooks.SuccessEvent, maxBody int) *Record {
	r := newRecord(&ev.Call, OutcomeSuccess, ev.EndTime)
	r.StatusCode = ev.StatusCode
	r.Model = ev.Model
	r.PromptTokens = ev.Usage.PromptTokens
	r.CompletionTokens = ev.Usage.CompletionTokens
	r.TotalTokens = ev.Usage.TotalTokens

	var cut bool
	r.RequestBody, cut = requestText(ev.RequestBody, maxBody)
	r.ResponseBody, r.Truncated = truncate(string(ev.ResponseBody), maxBody)
	r.Truncated = r.Truncated || cut || ev.Truncated
	return r
}

// FromFailure builds a record from a failure event.
func FromFailure(ev *hooks.FailureEvent, maxBody int) *Record {
	r := newRecord(&ev.Call, OutcomeFailure, ev.EndTime)
	r.StatusCode = ev.StatusCode
	r.ErrorType = ev.ErrorType
	r.TraceID = ev.Trace
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	}
	r.RequestBody, r.Truncated = requestText(ev.RequestBody, maxBody)
	return r
}
