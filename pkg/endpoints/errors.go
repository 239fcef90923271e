package endpoints

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no definition matches an id.
var ErrNotFound = errors.New("pass-through endpoint not found")

// ValidationError reports a malformed definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid endpoint %s: %s", e.Field, e.Message)
}

// Validate checks the fields every stored definition must carry.
func Validate(d Definition) error {
	if d.Path == "" {
		return &ValidationError{Field: "path", Message: "path is required"}
	}
	if d.Path[0] != '/' {
		return &ValidationError{Field: "path", Message: "path must start with /"}
	}
	return nil
}
