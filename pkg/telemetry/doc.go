// Package telemetry groups the gateway's observability packages.
//
//   - logging configures slog (level, format, rotated file output) and
//     redacts credentials from headers and log attributes.
//   - metrics exposes Prometheus request, usage, stream and route-table
//     metrics, fed by the call hooks.
//   - tracing creates an OpenTelemetry span per upstream call and injects
//     the trace context into outbound headers.
//   - health serves liveness, readiness and version probes.
//   - hooks defines the per-call telemetry interface and the asynchronous
//     dispatcher that isolates sinks from the request path.
//
// Every forwarded call produces exactly one success or failure event. The
// dispatcher runs sinks off the request goroutine with a timeout, so a slow
// or panicking sink never changes the client response.
package telemetry
