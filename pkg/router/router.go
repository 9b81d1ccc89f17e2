package router

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/pattern"
	"go.uber.org/zap"
)

// Handler handles a dispatched request. The returned value is materialized
// according to its type: *Response is written verbatim, *File is streamed,
// a string is sent as text and anything else is encoded as JSON.
type Handler func(c *Context) (any, error)

// Route is a registered HTTP route. It is immutable once registered.
type Route struct {
	Method  string
	Pattern *pattern.Pattern
	Handler Handler
	Config  RouteConfig
}

// WSRoute is a registered WebSocket route.
type WSRoute struct {
	Pattern *pattern.Pattern
	Handler WSHandler
}

// Router is a dispatch engine instance. It owns its routes, WebSocket routes
// and hooks, and may embed other routers as plugins with Use.
//
// Registration is not synchronized: every route, hook and plugin must be
// registered before the router starts serving requests.
type Router struct {
	config   RouterConfig
	logger   *zap.Logger
	routes   []*Route
	wsRoutes []*WSRoute
	hooks    Hooks
	plugins  []*Router
	handler  http.Handler

	wg         sync.WaitGroup
	shutdown   bool
	shutdownMu sync.RWMutex

	wsMu    sync.Mutex
	wsConns map[*WSConn]struct{}
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(config RouterConfig) *Router {
	// Set up the logger
	logger := config.Logger
	if logger == nil {
		// Create a default logger if none is provided
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			// Fallback to a no-op logger if we can't create a production logger
			logger = zap.NewNop()
		}
	}

	r := &Router{
		config: config,
		logger: logger,
	}
	r.handler = common.NewMiddlewareChain(config.Middlewares...).Then(http.HandlerFunc(r.dispatch))
	return r
}

// Logger returns the router's logger.
func (r *Router) Logger() *zap.Logger {
	return r.logger
}

// Handle registers a route for method and path. The first RouteConfig, if
// any, declares the route's schemas. It panics if path is not a valid
// pattern, mirroring how net/http treats conflicting registrations.
func (r *Router) Handle(method, path string, h Handler, cfg ...RouteConfig) *Router {
	p, err := pattern.Compile(path)
	if err != nil {
		panic(fmt.Sprintf("router: invalid route %s %q: %v", method, path, err))
	}
	route := &Route{Method: method, Pattern: p, Handler: h}
	if len(cfg) > 0 {
		route.Config = cfg[0]
	}
	r.routes = append(r.routes, route)
	return r
}

// Get registers a GET route.
func (r *Router) Get(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodGet, path, h, cfg...)
}

// Post registers a POST route.
func (r *Router) Post(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodPost, path, h, cfg...)
}

// Put registers a PUT route.
func (r *Router) Put(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodPut, path, h, cfg...)
}

// Delete registers a DELETE route.
func (r *Router) Delete(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodDelete, path, h, cfg...)
}

// Patch registers a PATCH route.
func (r *Router) Patch(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodPatch, path, h, cfg...)
}

// Head registers a HEAD route.
func (r *Router) Head(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodHead, path, h, cfg...)
}

// Options registers an OPTIONS route.
func (r *Router) Options(path string, h Handler, cfg ...RouteConfig) *Router {
	return r.Handle(http.MethodOptions, path, h, cfg...)
}

// WS registers a WebSocket route.
func (r *Router) WS(path string, h WSHandler) *Router {
	p, err := pattern.Compile(path)
	if err != nil {
		panic(fmt.Sprintf("router: invalid websocket route %q: %v", path, err))
	}
	r.wsRoutes = append(r.wsRoutes, &WSRoute{Pattern: p, Handler: h})
	return r
}

// Use embeds child as a plugin. Its routes and hooks are consulted after
// the router's own, in the order plugins were added. Only the child's own
// entries are visible; plugins of the child are not traversed. The child
// is not copied, so later registrations on it are seen by the parent.
func (r *Router) Use(child *Router) *Router {
	if child != nil && child != r {
		r.plugins = append(r.plugins, child)
	}
	return r
}

// Plugins returns the directly embedded routers.
func (r *Router) Plugins() []*Router {
	return append([]*Router(nil), r.plugins...)
}

// Routes returns the router's own routes.
func (r *Router) Routes() []*Route {
	return append([]*Route(nil), r.routes...)
}

// AllRoutes returns the routes consulted during dispatch: the router's own
// followed by each plugin's own, in Use order.
func (r *Router) AllRoutes() []*Route {
	out := append([]*Route(nil), r.routes...)
	for _, p := range r.plugins {
		out = append(out, p.routes...)
	}
	return out
}

// AllWSRoutes returns the WebSocket routes consulted during dispatch, in
// the same order as AllRoutes.
func (r *Router) AllWSRoutes() []*WSRoute {
	out := append([]*WSRoute(nil), r.wsRoutes...)
	for _, p := range r.plugins {
		out = append(out, p.wsRoutes...)
	}
	return out
}

// match returns the first route whose method and pattern match.
func (r *Router) match(method, escapedPath string) (*Route, pattern.Params) {
	for _, route := range r.AllRoutes() {
		if route.Method != method {
			continue
		}
		if params, ok := route.Pattern.Match(escapedPath); ok {
			return route, params
		}
	}
	return nil, nil
}

// matchWS returns the first WebSocket route whose pattern matches.
func (r *Router) matchWS(escapedPath string) (*WSRoute, pattern.Params) {
	for _, route := range r.AllWSRoutes() {
		if params, ok := route.Pattern.Match(escapedPath); ok {
			return route, params
		}
	}
	return nil, nil
}

// ServeHTTP implements the http.Handler interface.
// Configured middlewares run first, then the dispatcher.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Typed adapts a handler that works on concrete types. The body is taken
// from c.Body with As, so it pairs with a validation.Struct[Req] body
// schema; a body of any other type is rejected with 400.
func Typed[Req any, Resp any](h func(c *Context, req Req) (Resp, error)) Handler {
	return func(c *Context) (any, error) {
		req, ok := As[Req](c.Body)
		if !ok && c.Body != nil {
			return nil, NewHTTPError(http.StatusBadRequest, "unexpected request body")
		}
		return h(c, req)
	}
}
