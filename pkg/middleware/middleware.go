// Package middleware provides collaborator plugins for SDispatch.
//
// Each constructor returns a *router.Router that carries hooks (and
// occasionally routes) but is meant to be embedded with Use rather than
// served on its own:
//
//	r := router.NewRouter(router.RouterConfig{Logger: logger})
//	r.Use(middleware.Trace()).Use(middleware.Logging(logger))
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/zap"
)

// SlowRequestThreshold is the duration above which Logging reports a
// successful request at Warn level.
const SlowRequestThreshold = time.Second

type startKey struct{}

// newPlugin returns an empty router for a plugin to hang hooks on.
func newPlugin(logger *zap.Logger) *router.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return router.NewRouter(router.RouterConfig{Logger: logger})
}

// markStart records the dispatch start time on the request.
func markStart(c *router.Context) {
	if _, ok := c.Value(startKey{}).(time.Time); !ok {
		c.SetValue(startKey{}, time.Now())
	}
}

// elapsed returns the time since markStart, or zero if it never ran.
func elapsed(c *router.Context) time.Duration {
	if start, ok := c.Value(startKey{}).(time.Time); ok {
		return time.Since(start)
	}
	return 0
}

// ResponseStatus returns the status a response value will be written with.
func ResponseStatus(c *router.Context, value any) int {
	if resp, ok := value.(*router.Response); ok && resp != nil {
		if resp.Status == 0 {
			return http.StatusOK
		}
		return resp.Status
	}
	if c.Set != nil && c.Set.Status != 0 {
		return c.Set.Status
	}
	return http.StatusOK
}

// ErrorStatus returns the status an error is reported with when no error
// hook supplies a response.
func ErrorStatus(err error) int {
	var httpErr *router.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var halt *router.HaltError
	if errors.As(err, &halt) && halt.Response != nil && halt.Response.Status != 0 {
		return halt.Response.Status
	}
	return http.StatusInternalServerError
}

// Logging returns a plugin that logs one line per handled request.
// Server errors are logged at Error level, client errors and slow requests
// at Warn, and everything else at Debug to avoid log spam.
func Logging(logger *zap.Logger) *router.Router {
	p := newPlugin(logger)
	log := p.Logger()

	p.OnRequest(func(c *router.Context) (router.Step, error) {
		markStart(c)
		return router.Continue(nil), nil
	})

	p.OnResponse(func(c *router.Context, value any) (router.Step, error) {
		logRequest(log, c, ResponseStatus(c, value), nil)
		return router.Continue(nil), nil
	})

	p.OnError(func(c *router.Context, err error) router.Step {
		logRequest(log, c, ErrorStatus(err), err)
		return router.Continue(nil)
	})

	return p
}

func logRequest(logger *zap.Logger, c *router.Context, status int, err error) {
	duration := elapsed(c)
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Duration("duration", duration),
	}
	if c.Route != nil {
		fields = append(fields, zap.String("route", c.Route.Pattern.String()))
	}
	if traceID := c.TraceID(); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	switch {
	case status >= 500:
		logger.Error("Server error", append(fields, zap.String("remote_addr", c.Request.RemoteAddr))...)
	case status >= 400:
		logger.Warn("Client error", fields...)
	case duration > SlowRequestThreshold:
		logger.Warn("Slow request", fields...)
	default:
		logger.Debug("Request", fields...)
	}
}
