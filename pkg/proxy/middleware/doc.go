// Package middleware provides the HTTP middleware shared by the gateway's
// forwarded and management routes.
//
// The server chains them outermost first:
//
//	handler = RequestID(Recovery(tracing.Middleware(Logging(CORS(handler)))))
//
// RequestID stores the id in the context through the logging package, so
// every log line written with a *Context method carries request_id.
// Logging's response writer forwards Flush; streamed relays depend on it.
// Timeout is applied to management routes only.
package middleware
