package passthrough

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"mercator-hq/passthrough/pkg/adapters"
	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/proxy/types"
	"mercator-hq/passthrough/pkg/router"
	"mercator-hq/passthrough/pkg/security/auth"
	"mercator-hq/passthrough/pkg/streaming"
	"mercator-hq/passthrough/pkg/telemetry/hooks"
	"mercator-hq/passthrough/pkg/telemetry/logging"
	"mercator-hq/passthrough/pkg/telemetry/tracing"
)

// Endpoint is a definition compiled for serving: headers resolved, target
// classified as URL or adapter.
type Endpoint struct {
	def     endpoints.Definition
	headers http.Header
	adapter adapters.Adapter
}

// Definition returns the source definition.
func (ep *Endpoint) Definition() endpoints.Definition {
	return ep.def
}

// Compile checks def and prepares it for serving. Configured headers are
// resolved here, once.
func (e *Engine) Compile(ctx context.Context, def endpoints.Definition) (*Endpoint, error) {
	if err := endpoints.Validate(def); err != nil {
		return nil, err
	}
	if def.Auth {
		if !e.premiumUser {
			return nil, &ConfigError{EndpointID: def.ID, Path: def.Path, Field: "auth",
				Message: "auth on pass-through endpoints requires a premium licence"}
		}
		if e.guard == nil {
			return nil, &ConfigError{EndpointID: def.ID, Path: def.Path, Field: "auth",
				Message: "auth requested but authentication is disabled"}
		}
	}

	headers, err := ResolveHeaders(ctx, def, e.resolver, e.logger)
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{def: def.Clone(), headers: headers}

	if !def.Routable() {
		return ep, nil
	}
	if a, ok := e.adapters.Lookup(def.Target); ok {
		ep.adapter = a
		return ep, nil
	}
	u, err := url.Parse(def.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConfigError{EndpointID: def.ID, Path: def.Path, Field: "target",
			Message: fmt.Sprintf("%q is neither an absolute http(s) URL nor a registered adapter", def.Target)}
	}
	return ep, nil
}

// Handler returns the HTTP handler serving ep, wrapped with the
// authentication check when the definition requires it.
func (e *Engine) Handler(ep *Endpoint) http.Handler {
	var h http.Handler
	if ep.adapter != nil {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { e.serveAdapter(ep, w, r) })
	} else {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { e.serveURL(ep, w, r) })
	}
	if ep.def.Auth && e.guard != nil {
		h = e.guard.Handle(h)
	}
	return h
}

func (e *Engine) newCall(ep *Endpoint, r *http.Request) *hooks.Call {
	id, _ := auth.FromContext(r.Context())
	return &hooks.Call{
		CallID:         uuid.NewString(),
		EndpointID:     ep.def.ID,
		Route:          r.URL.Path,
		Method:         r.Method,
		Identity:       id,
		CostPerRequest: ep.def.CostPerRequest,
		StartTime:      e.now(),
	}
}

// targetURL computes the upstream URL for r.
func (ep *Endpoint) targetURL(r *http.Request) (string, error) {
	target := ep.def.Target
	var err error
	if ep.def.IncludeSubpath {
		if target, err = JoinSubpath(target, router.Subpath(r.Context())); err != nil {
			return "", err
		}
	}
	if ep.def.MergeQueryParams {
		if target, err = MergeQuery(target, r.URL.Query()); err != nil {
			return "", err
		}
	}
	return target, nil
}

// prepare strips control fields, builds metadata and runs the pre-call
// hooks. A hook rejection stops the call before anything is sent upstream.
func (e *Engine) prepare(ctx context.Context, call *hooks.Call, body *Body, tags string) error {
	var control map[string]any
	if body.JSON != nil {
		body.JSON, control = e.controlFields.Split(body.JSON)
	}
	call.Metadata = BuildMetadata(call.Identity, control, tags)

	data, err := e.hooks.PreCall(ctx, call.Identity, body.JSON, hooks.CallTypePassthrough)
	if err != nil {
		return err
	}
	if body.JSON != nil && data != nil {
		body.JSON = data
	}
	if call.Method != http.MethodGet {
		call.RequestBody = body.Telemetry()
	}
	return nil
}

func (e *Engine) serveURL(ep *Endpoint, w http.ResponseWriter, r *http.Request) {
	call := e.newCall(ep, r)
	ctx := logging.WithCallID(r.Context(), call.CallID)
	r = r.WithContext(ctx)

	target, err := ep.targetURL(r)
	if err != nil {
		e.fail(w, r, call, err)
		return
	}
	call.TargetURL = target
	call.Flavor = string(DetectFlavor(target))

	body, err := ReadBody(w, r, e.maxBody)
	if err != nil {
		e.fail(w, r, call, err)
		return
	}
	if err := e.prepare(ctx, call, body, r.Header.Get(HeaderTags)); err != nil {
		e.fail(w, r, call, err)
		return
	}

	out := &OutboundRequest{
		Method:     r.Method,
		URL:        target,
		Header:     OutboundHeaders(r.Header, ep.headers, ep.def.ForwardHeaders),
		Body:       body,
		EndpointID: ep.def.ID,
		Stream:     streamRequested(r.URL.Query()),
	}
	call.Streaming = out.Stream
	e.logger.DebugContext(ctx, "forwarding request",
		"endpoint_id", ep.def.ID,
		"method", out.Method,
		"url", logURL(out.URL),
		"headers", out.Header,
		"stream", out.Stream,
	)

	up, err := e.forwarder.Do(ctx, out)
	if err != nil {
		e.fail(w, r, call, err)
		return
	}
	call.Streaming = up.Streaming
	if up.Streaming {
		e.relayStream(w, r, call, up)
		return
	}
	e.relayBuffered(w, r, call, up)
}

func (e *Engine) serveAdapter(ep *Endpoint, w http.ResponseWriter, r *http.Request) {
	call := e.newCall(ep, r)
	ctx := logging.WithCallID(r.Context(), call.CallID)
	r = r.WithContext(ctx)
	call.TargetURL = ep.def.Target
	call.Flavor = string(streaming.FlavorGeneric)

	body, err := ReadBody(w, r, e.maxBody)
	if err != nil {
		e.fail(w, r, call, err)
		return
	}
	if err := e.prepare(ctx, call, body, r.Header.Get(HeaderTags)); err != nil {
		e.fail(w, r, call, err)
		return
	}

	req := &adapters.Request{
		CallID:   call.CallID,
		Method:   r.Method,
		Header:   OutboundHeaders(r.Header, ep.headers, ep.def.ForwardHeaders),
		Body:     body.JSON,
		Metadata: call.Metadata,
		Identity: call.Identity,
	}
	if ep.def.IncludeSubpath {
		req.Subpath = router.Subpath(ctx)
	}

	resp, err := ep.adapter.Handle(ctx, req)
	if err != nil {
		e.fail(w, r, call, fmt.Errorf("adapter %s: %w", ep.adapter.Name(), err))
		return
	}
	payload, err := json.Marshal(resp.Body)
	if err != nil {
		e.fail(w, r, call, fmt.Errorf("encode adapter response: %w", err))
		return
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	end := e.now()

	custom := map[string]string{
		HeaderResponseDuration: strconv.FormatInt(end.Sub(call.StartTime).Milliseconds(), 10),
	}
	if call.CostPerRequest != nil {
		custom[HeaderResponseCost] = strconv.FormatFloat(*call.CostPerRequest, 'f', -1, 64)
	}
	header := ResponseHeaders(resp.Header, call.CallID, custom)
	header.Set("Content-Type", "application/json")
	copyHeader(w.Header(), header)
	w.WriteHeader(status)
	_, _ = w.Write(payload)

	captured, truncated := capBytes(payload, e.maxCapture)
	model, usage := streaming.Usage(streaming.FlavorGeneric, payload)
	e.hooks.Success(ctx, &hooks.SuccessEvent{
		Call:            *call,
		StatusCode:      status,
		ResponseHeaders: header,
		ResponseBody:    captured,
		Truncated:       truncated,
		Model:           model,
		Usage:           usage,
		EndTime:         end,
	})
}

// fail reports err to the failure hooks and writes the uniform error
// envelope. Hook failures never replace err.
func (e *Engine) fail(w http.ResponseWriter, r *http.Request, call *hooks.Call, err error) {
	ctx := r.Context()
	pe := ToProxyError(err)
	status := pe.StatusCode()

	attrs := []any{
		"call_id", call.CallID,
		"endpoint_id", call.EndpointID,
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		e.logger.WarnContext(ctx, "pass-through call failed", attrs...)
	} else {
		e.logger.InfoContext(ctx, "pass-through call rejected", attrs...)
	}

	e.hooks.Failure(ctx, &hooks.FailureEvent{
		Call:       *call,
		StatusCode: status,
		ErrorType:  pe.Type,
		Err:        err,
		Trace:      tracing.TraceID(ctx),
		EndTime:    e.now(),
	})

	w.Header().Set(HeaderCallID, call.CallID)
	types.WriteError(w, pe.Response())
}

// logURL returns raw without its query, fragment or userinfo.
func logURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
