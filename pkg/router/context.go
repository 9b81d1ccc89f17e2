package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"go.uber.org/zap"
)

// Context is the per-request state handed to hooks and handlers.
// It is owned by the dispatching goroutine and must not be retained after
// the request completes.
//
// Params, Query, Body, Headers and Cookies hold the validated value when
// the route declares a schema for that part, and the raw parsed value
// otherwise: map[string]string for params, query, headers and cookies,
// and the result of codec.ParseBody for the body.
type Context struct {
	Request *http.Request
	Path    string
	Route   *Route

	Params  any
	Query   any
	Body    any
	Headers any
	Cookies any

	// Set accumulates response side effects from hooks and the handler.
	Set *ResponseState

	rawParams  map[string]string
	rawQuery   map[string]string
	rawHeaders map[string]string
	rawCookies map[string]string

	logger *zap.Logger
}

// ResponseState is the pending status, headers and cookies of a response.
// A zero Status means 200 unless the request ends on the error path.
type ResponseState struct {
	Status  int
	Headers http.Header
	Cookies []Cookie
}

// Header sets a response header, replacing any previous value.
func (s *ResponseState) Header(key, value string) {
	s.Headers.Set(key, value)
}

// SetCookie queues a cookie. Each queued cookie becomes its own
// Set-Cookie line.
func (s *ResponseState) SetCookie(c Cookie) {
	s.Cookies = append(s.Cookies, c)
}

// Status records code as the response status and returns data unchanged,
// so a handler can write `return c.Status(201, user), nil`.
func (c *Context) Status(code int, data any) any {
	c.Set.Status = code
	return data
}

// Param returns the raw value of a path parameter.
func (c *Context) Param(name string) string {
	return c.rawParams[name]
}

// QueryParam returns the raw value of a query parameter (last value wins).
func (c *Context) QueryParam(name string) string {
	return c.rawQuery[name]
}

// Header returns the raw value of a request header. Multiple values are
// joined with ", ".
func (c *Context) Header(name string) string {
	return c.rawHeaders[strings.ToLower(name)]
}

// Cookie returns the decoded value of a request cookie.
func (c *Context) Cookie(name string) string {
	return c.rawCookies[name]
}

// Context returns the request's context.
func (c *Context) Context() context.Context {
	return c.Request.Context()
}

// SetValue stores a request-scoped value visible to later hooks and the
// handler through Value and through the request context.
func (c *Context) SetValue(key, value any) {
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), key, value))
}

// Value returns a request-scoped value.
func (c *Context) Value(key any) any {
	return c.Request.Context().Value(key)
}

// TraceID returns the request's trace ID, if a plugin assigned one.
func (c *Context) TraceID() string {
	return common.TraceIDFromContext(c.Request.Context())
}

// Logger returns a logger annotated with the request method and route.
func (c *Context) Logger() *zap.Logger {
	fields := []zap.Field{zap.String("method", c.Request.Method)}
	if c.Route != nil {
		fields = append(fields, zap.String("route", c.Route.Pattern.String()))
	}
	if traceID := c.TraceID(); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	return c.logger.With(fields...)
}

// As converts a context value (for example c.Body) to T.
// Struct schemas produce values of their declared type, so after
// validation.Struct[T] the conversion always succeeds.
func As[T any](v any) (T, bool) {
	switch t := v.(type) {
	case T:
		return t, true
	case *T:
		if t != nil {
			return *t, true
		}
	}
	var zero T
	return zero, false
}
