package adapters

import (
	"context"
	"net/http"
)

// Echo returns the call it received. It is registered under "echo" and is
// useful for checking what a route delivers after transformation.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Handle(_ context.Context, req *Request) (*Response, error) {
	return &Response{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"call_id":  req.CallID,
			"method":   req.Method,
			"subpath":  req.Subpath,
			"body":     req.Body,
			"metadata": req.Metadata,
		},
	}, nil
}
