// Package validation defines the schema contract used by the router to
// validate and coerce request parts and response payloads, together with
// adapters for JSON Schema, struct tags and plain functions.
package validation

import (
	"context"
	"errors"
	"strings"
)

// Location names the part of a request (or the response) a value came from.
type Location string

const (
	LocationParams   Location = "params"
	LocationQuery    Location = "query"
	LocationBody     Location = "body"
	LocationHeaders  Location = "headers"
	LocationCookies  Location = "cookies"
	LocationResponse Location = "response"
)

// Schema validates a value and returns its coerced form.
// A failed validation must return an error; a *Error carries field-level
// issues, any other error is reported as a single issue.
type Schema interface {
	Validate(ctx context.Context, value any) (any, error)
}

// strictener is implemented by schemas that coerce their input and can
// return a variant that does not.
type strictener interface {
	strict() Schema
}

// Strict returns a variant of schema that validates values as they are,
// without coercing strings or weakly decoding. Schemas that never coerce
// are returned unchanged.
func Strict(schema Schema) Schema {
	if s, ok := schema.(strictener); ok {
		return s.strict()
	}
	return schema
}

// Func adapts an ordinary function to the Schema interface.
type Func func(ctx context.Context, value any) (any, error)

// Validate calls f(ctx, value).
func (f Func) Validate(ctx context.Context, value any) (any, error) {
	return f(ctx, value)
}

// Issue is one field-level validation problem.
type Issue struct {
	Location Location `json:"location,omitempty"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
}

// Error is a structured validation failure.
type Error struct {
	Issues []Issue `json:"issues"`
}

// Error joins all issues into one line.
func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.String())
	}
	return strings.Join(parts, "; ")
}

// Add appends an issue.
func (e *Error) Add(path, message string) {
	e.Issues = append(e.Issues, Issue{Path: path, Message: message})
}

// String renders the issue as "location.path: message".
func (i Issue) String() string {
	prefix := string(i.Location)
	if i.Path != "" {
		if prefix != "" {
			prefix += "."
		}
		prefix += i.Path
	}
	if prefix == "" {
		return i.Message
	}
	return prefix + ": " + i.Message
}

// IssuesOf converts any validation error into issues stamped with loc.
func IssuesOf(loc Location, err error) []Issue {
	if err == nil {
		return nil
	}
	var verr *Error
	if !errors.As(err, &verr) {
		return []Issue{{Location: loc, Message: err.Error()}}
	}
	out := make([]Issue, 0, len(verr.Issues))
	for _, is := range verr.Issues {
		is.Location = loc
		out = append(out, is)
	}
	return out
}

// Run validates value against schema on behalf of loc.
// A nil schema passes the value through unchanged.
func Run(ctx context.Context, loc Location, schema Schema, value any) (any, []Issue) {
	if schema == nil {
		return value, nil
	}
	out, err := schema.Validate(ctx, value)
	if err != nil {
		return nil, IssuesOf(loc, err)
	}
	return out, nil
}
