// Package types defines the wire shapes shared by every HTTP surface of the
// gateway. All client-visible errors use ErrorResponse:
//
//	{"error": {"message": "...", "type": "upstream_error", "param": "", "code": "404"}}
package types
