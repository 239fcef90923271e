// Package tracing exports OpenTelemetry spans for forwarded calls.
//
// Each upstream call runs inside a client span named passthrough.upstream
// carrying the method, target URL, endpoint id and response status. The
// W3C traceparent header is injected into the outbound request so the
// upstream joins the caller's trace. Spans are exported over OTLP gRPC.
package tracing
