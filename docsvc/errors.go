package docsvc

import (
	"errors"
	"fmt"
)

// InvalidArgumentsError reports a schema or domain validation failure for a
// named field. No fetch is attempted when arguments are invalid.
type InvalidArgumentsError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments: %s: %s", e.Field, e.Reason)
}

// ToolNotFoundError reports an invocation naming an unregistered tool.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// NotFoundError reports that the upstream source has no documentation for
// the requested crate or item.
type NotFoundError struct {
	Crate    string
	ItemPath string
}

func (e *NotFoundError) Error() string {
	if e.ItemPath != "" {
		return fmt.Sprintf("no documentation for %s in crate %s", e.ItemPath, e.Crate)
	}
	return fmt.Sprintf("no documentation for crate %s", e.Crate)
}

// LookupError reports an upstream fetch failure (HTTP error, timeout,
// transport fault). The cause is preserved for diagnostics.
type LookupError struct {
	Crate string
	Query string
	Err   error
}

func (e *LookupError) Error() string {
	subject := e.Crate
	if subject == "" {
		subject = fmt.Sprintf("search %q", e.Query)
	}
	return fmt.Sprintf("lookup failed for %s: %v", subject, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// IsInvalidArguments reports whether err is an argument validation failure.
func IsInvalidArguments(err error) bool {
	var iae *InvalidArgumentsError
	return errors.As(err, &iae)
}
