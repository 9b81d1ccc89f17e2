// Package router provides an embeddable HTTP request-dispatch engine.
// It resolves routes, validates request parts against schemas, runs a
// layered hook pipeline contributed by the router and its plugins, and
// materializes handler results into HTTP responses.
package router

import (
	"net/http"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/validation"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds the graceful drain performed by Serve.
const DefaultShutdownTimeout = 30 * time.Second

// RouterConfig defines the global configuration for the router.
// It includes settings for logging, body limits, middleware and WebSockets.
// Only the configuration of the router that serves requests is consulted;
// routers embedded with Use contribute routes and hooks only.
type RouterConfig struct {
	Logger          *zap.Logger         // Logger for all router operations
	MaxBodySize     int64               // Maximum request body size in bytes (0 = unlimited)
	EnableTraceID   bool                // Include trace IDs in log entries when present
	Middlewares     []common.Middleware // net/http middlewares wrapped around the dispatcher
	NotFoundHandler http.Handler        // Optional handler for unmatched requests
	WebSocket       WebSocketConfig     // WebSocket upgrade settings
	ShutdownTimeout time.Duration       // Graceful drain budget used by Serve (default 30s)
}

// WebSocketConfig configures the WebSocket handshake.
type WebSocketConfig struct {
	// OriginPatterns lists host patterns allowed in the Origin header,
	// in addition to the request's own host.
	OriginPatterns []string

	// InsecureSkipVerify disables the Origin check entirely.
	InsecureSkipVerify bool

	// ReadLimit caps the size of a single incoming message in bytes.
	// Zero keeps the library default.
	ReadLimit int64

	// Subprotocols lists the subprotocols the server is willing to negotiate.
	Subprotocols []string
}

// RouteConfig declares the schemas and metadata of a route.
// Every schema is optional; a request part without a schema reaches the
// handler in its raw parsed form.
type RouteConfig struct {
	Params   validation.Schema // Path parameters (map[string]string when raw)
	Query    validation.Schema // Query string (map[string]string when raw)
	Body     validation.Schema // Parsed body (see codec.ParseBody)
	Headers  validation.Schema // Lower-cased header map (map[string]string when raw)
	Cookies  validation.Schema // Request cookies (map[string]string when raw)
	Response *ResponseSchema   // Response payload schema
	Meta     map[string]any    // Descriptive metadata, never interpreted by the router
}

// ResponseSchema is either one schema applied to every status or a
// mapping from status code to schema.
type ResponseSchema struct {
	schema   validation.Schema
	byStatus map[int]validation.Schema
}

// fallbackStatuses is consulted when the current status has no schema.
var fallbackStatuses = []int{http.StatusOK, http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError}

// ResponseOf returns a response schema applied regardless of status.
// Response payloads are validated strictly: a wrong type is a handler bug,
// so it fails instead of being coerced.
func ResponseOf(schema validation.Schema) *ResponseSchema {
	return &ResponseSchema{schema: validation.Strict(schema)}
}

// ResponseByStatus returns a response schema selected by status code.
// Like ResponseOf, every schema is validated strictly.
func ResponseByStatus(schemas map[int]validation.Schema) *ResponseSchema {
	byStatus := make(map[int]validation.Schema, len(schemas))
	for status, schema := range schemas {
		byStatus[status] = validation.Strict(schema)
	}
	return &ResponseSchema{byStatus: byStatus}
}

// For returns the schema to apply for the given status, or nil when the
// response should pass through unvalidated. A status of zero means 200.
func (s *ResponseSchema) For(status int) validation.Schema {
	if s == nil {
		return nil
	}
	if s.byStatus == nil {
		return s.schema
	}
	if status == 0 {
		status = http.StatusOK
	}
	if schema, ok := s.byStatus[status]; ok {
		return schema
	}
	for _, st := range fallbackStatuses {
		if schema, ok := s.byStatus[st]; ok {
			return schema
		}
	}
	return nil
}

// Middleware is an alias for common.Middleware.
// It represents a function that wraps an http.Handler to provide additional functionality.
type Middleware = common.Middleware
