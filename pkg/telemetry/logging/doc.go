// Package logging configures log/slog for the gateway.
//
// Logs are JSON or text, optionally mirrored to a file rotated by
// lumberjack. Credential headers and tokens are masked by a ReplaceAttr
// hook, and request and call ids stored in the context are attached to
// records logged through the *Context methods.
package logging
