package router

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/pattern"
	"github.com/Suhaibinator/SDispatch/pkg/validation"
	"go.uber.org/zap"
)

// dispatch runs one request through routing, validation, hooks, the
// handler and materialization.
func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	// First add to the wait group before checking shutdown status
	r.wg.Add(1)

	r.shutdownMu.RLock()
	isShutdown := r.shutdown
	r.shutdownMu.RUnlock()

	if isShutdown {
		// If shutting down, decrement the wait group and return error
		r.wg.Done()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	escaped := req.URL.EscapedPath()

	if isWebSocketUpgrade(req) {
		if route, params := r.matchWS(escaped); route != nil {
			// Upgraded connections outlive the drain; Shutdown closes them.
			r.wg.Done()
			r.serveWS(w, req, route, params)
			return
		}
	}

	defer r.wg.Done()

	start := time.Now()
	rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic recovered", r.requestFields(req, zap.Any("panic", rec))...)
			if !rw.wroteHeader {
				writeError(rw, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
			}
		}
	}()

	route, params := r.match(req.Method, escaped)
	if route == nil {
		r.logger.Debug("Route not found", r.requestFields(req)...)
		if r.config.NotFoundHandler != nil {
			r.config.NotFoundHandler.ServeHTTP(rw, req)
			return
		}
		writeError(rw, http.StatusNotFound, errorBody{Error: ErrRouteNotFound.Error()})
		return
	}

	if r.config.MaxBodySize > 0 && req.Body != nil {
		req.Body = http.MaxBytesReader(rw, req.Body, r.config.MaxBodySize)
	}

	body, err := codec.ParseBody(req)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			r.logger.Warn("Request body too large", r.requestFields(req, zap.Int64("limit", mbe.Limit))...)
			writeError(rw, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		r.logger.Warn("Failed to read request body", r.requestFields(req, zap.Error(err))...)
		writeError(rw, http.StatusBadRequest, errorBody{Error: "failed to read request body"})
		return
	}

	c := newContext(req, route, params, body, r.logger)

	if err := validateRequest(c, body); err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		r.logger.Warn("Request validation failed", r.requestFields(req,
			zap.String("route", route.Pattern.String()),
			zap.Error(err),
		)...)
		writeError(rw, http.StatusBadRequest, errorBody{Error: err.Error(), Details: verr.Issues})
		return
	}

	hooks := r.AllHooks()

	value, err := r.handle(c, hooks)
	switch {
	case errors.Is(err, ErrResponseValidation):
		var verr *ValidationError
		errors.As(err, &verr)
		r.logger.Error("Response validation failed", r.requestFields(c.Request,
			zap.String("route", route.Pattern.String()),
			zap.Error(err),
		)...)
		writeError(rw, http.StatusInternalServerError, errorBody{Error: err.Error(), Details: verr.Issues})
	case err != nil:
		r.handleError(rw, c, hooks, err)
	default:
		if err := materialize(rw, value, c.Set, http.StatusOK); err != nil {
			if rw.wroteHeader {
				r.logger.Error("Failed to write response", r.requestFields(c.Request, zap.Error(err))...)
			} else {
				r.handleError(rw, c, hooks, fmt.Errorf("encode response: %w", err))
			}
		}
	}

	r.logger.Debug("Request dispatched", r.requestFields(c.Request,
		zap.String("route", route.Pattern.String()),
		zap.Int("status", rw.statusCode),
		zap.Duration("duration", time.Since(start)),
	)...)
}

func newContext(req *http.Request, route *Route, params pattern.Params, body any, logger *zap.Logger) *Context {
	c := &Context{
		Request:    req,
		Path:       req.URL.Path,
		Route:      route,
		Set:        &ResponseState{Headers: make(http.Header)},
		rawParams:  params,
		rawQuery:   parseQuery(req.URL),
		rawHeaders: parseHeaders(req.Header),
		rawCookies: parseCookies(req.Header),
		logger:     logger,
	}
	if c.rawParams == nil {
		c.rawParams = map[string]string{}
	}
	c.Params = map[string]string(c.rawParams)
	c.Query = c.rawQuery
	c.Body = body
	c.Headers = c.rawHeaders
	c.Cookies = c.rawCookies
	return c
}

// validateRequest validates all five request parts and collects every
// issue before reporting. On success the context holds the coerced values.
func validateRequest(c *Context, body any) error {
	cfg := c.Route.Config
	ctx := c.Request.Context()

	var issues []validation.Issue
	run := func(loc validation.Location, schema validation.Schema, raw any, dst *any) {
		out, found := validation.Run(ctx, loc, schema, raw)
		if len(found) > 0 {
			issues = append(issues, found...)
			return
		}
		*dst = out
	}

	run(validation.LocationParams, cfg.Params, c.Params, &c.Params)
	run(validation.LocationQuery, cfg.Query, c.Query, &c.Query)
	run(validation.LocationBody, cfg.Body, body, &c.Body)
	run(validation.LocationHeaders, cfg.Headers, c.Headers, &c.Headers)
	run(validation.LocationCookies, cfg.Cookies, c.Cookies, &c.Cookies)

	if len(issues) > 0 {
		return &ValidationError{Kind: ErrRequestValidation, Issues: issues}
	}
	return nil
}

// handle runs the request hooks, the handler, the response hooks and
// response validation.
func (r *Router) handle(c *Context, hooks []Hooks) (any, error) {
	for _, h := range hooks {
		if h.Request == nil {
			continue
		}
		step, err := callRequestHook(h.Request, c)
		if err != nil {
			return nil, err
		}
		if step.Halted() {
			return step.Response(), nil
		}
	}

	value, err := callHandler(c.Route.Handler, c)
	if err != nil {
		return nil, err
	}
	value = payload(value)

	for _, h := range hooks {
		if h.Response == nil {
			continue
		}
		step, err := callResponseHook(h.Response, c, value)
		if err != nil {
			return nil, err
		}
		if step.Halted() {
			return step.Response(), nil
		}
		if v := payload(step.Value()); v != nil {
			value = v
		}
	}

	return validateResponse(c, value)
}

// validateResponse applies the route's response schema for the current
// status. Pass-through responses and files are never validated.
func validateResponse(c *Context, value any) (any, error) {
	switch value.(type) {
	case *Response, *File:
		return value, nil
	}
	schema := c.Route.Config.Response.For(c.Set.Status)
	if schema == nil {
		return value, nil
	}
	out, issues := validation.Run(c.Request.Context(), validation.LocationResponse, schema, value)
	if len(issues) > 0 {
		return nil, &ValidationError{Kind: ErrResponseValidation, Issues: issues}
	}
	return out, nil
}

// handleError runs the error hooks and writes the resulting response.
// A HaltError is written verbatim without consulting the hooks.
func (r *Router) handleError(w *responseWriter, c *Context, hooks []Hooks, err error) {
	if resp, ok := haltedResponse(err); ok {
		resp.write(w)
		return
	}

	r.logger.Error("Handler error", r.requestFields(c.Request,
		zap.String("route", c.Route.Pattern.String()),
		zap.Error(err),
	)...)

	// A success status recorded before the failure does not carry over to
	// the error response; error hooks may still set their own.
	if c.Set.Status < http.StatusBadRequest {
		c.Set.Status = 0
	}
	status, message := statusOf(err)

	var candidate any
	for _, h := range hooks {
		if h.Error == nil {
			continue
		}
		step := r.callErrorHook(h.Error, c, err)
		if step.Halted() {
			step.Response().write(w)
			return
		}
		if v := payload(step.Value()); v != nil {
			candidate = v
		}
	}

	if candidate != nil {
		merr := materialize(w, candidate, c.Set, status)
		if merr == nil || w.wroteHeader {
			return
		}
		r.logger.Error("Failed to encode error response", r.requestFields(c.Request, zap.Error(merr))...)
	}

	writeError(w, status, errorBody{Error: message})
}

func callRequestHook(h RequestHook, c *Context) (step Step, err error) {
	defer recoverInto(&err)
	return h(c)
}

func callResponseHook(h ResponseHook, c *Context, value any) (step Step, err error) {
	defer recoverInto(&err)
	return h(c, value)
}

func callHandler(h Handler, c *Context) (value any, err error) {
	defer recoverInto(&err)
	return h(c)
}

// callErrorHook runs an error hook. A panicking error hook is logged and
// treated as having no opinion.
func (r *Router) callErrorHook(h ErrorHook, c *Context, cause error) (step Step) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic in error hook", r.requestFields(c.Request, zap.Any("panic", rec))...)
			step = Continue(nil)
		}
	}()
	return h(c, cause)
}

func recoverInto(err *error) {
	if rec := recover(); rec != nil {
		*err = &panicError{value: rec}
	}
}

// requestFields returns the common log fields for req.
func (r *Router) requestFields(req *http.Request, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	}

	// Add trace ID if enabled and present
	if r.config.EnableTraceID {
		if traceID := common.TraceIDFromContext(req.Context()); traceID != "" {
			fields = append([]zap.Field{zap.String("trace_id", traceID)}, fields...)
		}
	}
	return append(fields, extra...)
}

// responseWriter is a wrapper around http.ResponseWriter that captures the status code.
// This allows the dispatcher to tell whether a response has already been started.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.WriteHeader.
func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write marks the header as written and calls the underlying ResponseWriter.Write.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher.
// This allows streaming responses to be flushed to the client immediately.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
