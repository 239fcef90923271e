package passthrough

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/telemetry/tracing"
)

// maxErrorBody bounds how much of a non-2xx upstream body is read into an
// UpstreamError.
const maxErrorBody = 1 << 20

// NewHTTPClient creates the pooled client shared by every forwarded call.
// No retries are performed; each upstream failure surfaces to the caller.
func NewHTTPClient(cfg config.PassthroughConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.UpstreamTimeout,
	}
}

// OutboundRequest is a fully transformed call ready to be sent upstream.
type OutboundRequest struct {
	Method     string
	URL        string
	Header     http.Header
	Body       *Body
	EndpointID string

	// Stream requests streaming dispatch regardless of the response
	// content type.
	Stream bool
}

// UpstreamResponse is a response whose headers have arrived. The body is
// decoded and must be consumed and closed with Finish.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Streaming  bool

	span trace.Span
}

// Finish closes the body and ends the upstream span.
func (u *UpstreamResponse) Finish(err error) {
	if u.Body != nil {
		u.Body.Close()
	}
	tracing.EndUpstream(u.span, u.StatusCode, err)
}

// Forwarder issues upstream calls.
type Forwarder struct {
	client *http.Client
	tracer *tracing.Tracer
}

// NewForwarder creates a forwarder. A nil tracer records nothing.
func NewForwarder(client *http.Client, tracer *tracing.Tracer) *Forwarder {
	return &Forwarder{client: client, tracer: tracer}
}

// Do sends req. A non-2xx status, streaming or not, is drained and returned
// as *UpstreamError before any byte reaches the caller.
func (f *Forwarder) Do(ctx context.Context, req *OutboundRequest) (*UpstreamResponse, error) {
	body, contentType, err := encodeBody(req.Method, req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if body == nil {
		httpReq.Header.Del("Content-Type")
	} else if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	var span trace.Span
	if f.tracer != nil {
		_, span = f.tracer.StartUpstream(ctx, req.Method, req.URL, req.EndpointID, httpReq.Header)
	} else {
		span = noop.Span{}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		tracing.EndUpstream(span, 0, err)
		return nil, fmt.Errorf("upstream %s %s: %w", req.Method, req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		uerr := &UpstreamError{StatusCode: resp.StatusCode, Body: errorBody(resp)}
		tracing.EndUpstream(span, resp.StatusCode, uerr)
		return nil, uerr
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		tracing.EndUpstream(span, resp.StatusCode, err)
		return nil, err
	}

	up := &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       decoded,
		Streaming:  req.Stream || isEventStream(resp.Header),
		span:       span,
	}
	return up, nil
}

// errorBody reads and closes the body of a non-2xx response. It is decoded
// when its Content-Encoding is understood and kept as received otherwise.
func errorBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), io.NopCloser(bytes.NewReader(raw)))
	if err != nil {
		return raw
	}
	defer decoded.Close()
	detail, err := io.ReadAll(io.LimitReader(decoded, maxErrorBody))
	if err != nil {
		return raw
	}
	return detail
}

// encodeBody renders the outbound payload. GET requests never carry one.
func encodeBody(method string, b *Body) (io.Reader, string, error) {
	if method == http.MethodGet || method == http.MethodHead || b == nil {
		return nil, "", nil
	}
	switch {
	case b.Form != nil:
		data, ct, err := encodeMultipart(b.Form)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), ct, nil
	case b.JSON != nil:
		data, err := json.Marshal(b.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return bytes.NewReader(b.Raw), b.ContentType, nil
	}
}

func isEventStream(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == "text/event-stream"
}
