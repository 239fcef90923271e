package passthrough

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"mercator-hq/passthrough/pkg/streaming"
	"mercator-hq/passthrough/pkg/telemetry/hooks"
)

// customHeaders returns the endpoint-specific headers added to a relayed
// response.
func customHeaders(call *hooks.Call) map[string]string {
	out := make(map[string]string, 3)
	if base := apiBase(call.TargetURL); base != "" {
		out[HeaderAPIBase] = base
	}
	if call.CostPerRequest != nil {
		out[HeaderResponseCost] = strconv.FormatFloat(*call.CostPerRequest, 'f', -1, 64)
	}
	return out
}

// relayBuffered reads the whole upstream body and writes a complete
// response. The success hook is scheduled after the client has its bytes.
func (e *Engine) relayBuffered(w http.ResponseWriter, r *http.Request, call *hooks.Call, up *UpstreamResponse) {
	body, err := io.ReadAll(up.Body)
	if err != nil {
		up.Finish(err)
		e.fail(w, r, call, err)
		return
	}
	up.Finish(nil)
	end := e.now()

	custom := customHeaders(call)
	custom[HeaderResponseDuration] = strconv.FormatInt(end.Sub(call.StartTime).Milliseconds(), 10)
	header := ResponseHeaders(up.Header, call.CallID, custom)
	header.Del("Transfer-Encoding")
	copyHeader(w.Header(), header)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(up.StatusCode)
	if _, err := w.Write(body); err != nil {
		e.logger.DebugContext(r.Context(), "client went away during buffered relay", "call_id", call.CallID, "error", err)
	}

	model, usage := streaming.Usage(streaming.Flavor(call.Flavor), body)
	captured, truncated := capBytes(body, e.maxCapture)
	e.hooks.Success(r.Context(), &hooks.SuccessEvent{
		Call:            *call,
		StatusCode:      up.StatusCode,
		ResponseHeaders: header,
		ResponseBody:    captured,
		Truncated:       truncated,
		Model:           model,
		Usage:           usage,
		EndTime:         end,
	})
}

// relayStream hands the live upstream body to the chunk relay and writes
// each chunk as it arrives. The relay's completion callback schedules the
// success hook; a client disconnect stops the relay without one.
func (e *Engine) relayStream(w http.ResponseWriter, r *http.Request, call *hooks.Call, up *UpstreamResponse) {
	ctx := r.Context()
	header := ResponseHeaders(up.Header, call.CallID, customHeaders(call))
	copyHeader(w.Header(), header)
	w.WriteHeader(up.StatusCode)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	status := up.StatusCode
	opts := streaming.Options{
		Flavor:      streaming.Flavor(call.Flavor),
		MaxCapture:  e.maxCapture,
		RequestBody: call.RequestBody,
		StartTime:   call.StartTime,
		OnComplete: func(s streaming.Summary) {
			e.hooks.Success(ctx, &hooks.SuccessEvent{
				Call:            *call,
				StatusCode:      status,
				ResponseHeaders: header,
				ResponseBody:    s.Captured,
				Truncated:       s.Truncated,
				Model:           s.Model,
				Usage:           s.Usage,
				EndTime:         s.EndTime,
			})
		},
	}

	var relayErr error
	for chunk, err := range e.relay.Relay(ctx, up.Body, opts) {
		if err != nil {
			relayErr = err
			break
		}
		if _, werr := w.Write(chunk); werr != nil {
			relayErr = werr
			break
		}
		if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
			relayErr = ferr
			break
		}
	}
	up.Finish(relayErr)

	switch {
	case relayErr == nil:
	case ctx.Err() != nil:
		e.logger.DebugContext(ctx, "client disconnected during stream", "call_id", call.CallID)
	default:
		// Headers are already sent; the client sees a truncated stream.
		e.logger.WarnContext(ctx, "stream relay failed", "call_id", call.CallID, "error", relayErr)
		e.hooks.Failure(ctx, &hooks.FailureEvent{
			Call:       *call,
			StatusCode: status,
			ErrorType:  "stream_error",
			Err:        relayErr,
			EndTime:    e.now(),
		})
	}
}

func copyHeader(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}

func capBytes(b []byte, limit int) ([]byte, bool) {
	if limit <= 0 {
		return nil, len(b) > 0
	}
	if len(b) <= limit {
		return b, false
	}
	return b[:limit], true
}
