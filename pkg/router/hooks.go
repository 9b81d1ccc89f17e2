package router

import (
	"context"
)

// Step is the result of a request, response or error hook.
// A hook either lets dispatch continue, optionally with a value, or
// short-circuits it with a ready-made response.
type Step struct {
	value    any
	response *Response
}

// Continue lets dispatch proceed. For response and error hooks a non-nil v
// replaces the running value; nil leaves it unchanged.
func Continue(v any) Step {
	return Step{value: v}
}

// ShortCircuit stops the current phase and writes resp verbatim.
// A nil resp is treated as Continue(nil).
func ShortCircuit(resp *Response) Step {
	return Step{response: resp}
}

// Value returns the value carried by a Continue step.
func (s Step) Value() any { return s.value }

// Response returns the response carried by a ShortCircuit step.
func (s Step) Response() *Response { return s.response }

// Halted reports whether the step short-circuits dispatch.
func (s Step) Halted() bool { return s.response != nil }

// RequestHook runs after validation and before the handler.
type RequestHook func(c *Context) (Step, error)

// ResponseHook runs after the handler and may replace its value.
type ResponseHook func(c *Context, value any) (Step, error)

// ErrorHook runs when the handler or a hook fails. A Continue value
// becomes the candidate error response.
type ErrorHook func(c *Context, err error) Step

// LifecycleHook runs around server start and stop.
type LifecycleHook func(ctx context.Context, r *Router) error

// Hooks is the hook set of one router. Each kind holds at most one hook;
// registering again replaces the previous one.
type Hooks struct {
	BeforeStart LifecycleHook
	AfterStart  LifecycleHook
	BeforeStop  LifecycleHook
	AfterStop   LifecycleHook
	Request     RequestHook
	Response    ResponseHook
	Error       ErrorHook
}

// OnRequest sets the request hook.
func (r *Router) OnRequest(h RequestHook) *Router {
	r.hooks.Request = h
	return r
}

// OnResponse sets the response hook.
func (r *Router) OnResponse(h ResponseHook) *Router {
	r.hooks.Response = h
	return r
}

// OnError sets the error hook.
func (r *Router) OnError(h ErrorHook) *Router {
	r.hooks.Error = h
	return r
}

// OnBeforeStart sets the hook run before the server accepts connections.
// An error aborts Serve.
func (r *Router) OnBeforeStart(h LifecycleHook) *Router {
	r.hooks.BeforeStart = h
	return r
}

// OnAfterStart sets the hook run once the server is accepting connections.
func (r *Router) OnAfterStart(h LifecycleHook) *Router {
	r.hooks.AfterStart = h
	return r
}

// OnBeforeStop sets the hook run before the graceful drain begins.
func (r *Router) OnBeforeStop(h LifecycleHook) *Router {
	r.hooks.BeforeStop = h
	return r
}

// OnAfterStop sets the hook run after the server has stopped.
func (r *Router) OnAfterStop(h LifecycleHook) *Router {
	r.hooks.AfterStop = h
	return r
}

// Hooks returns a copy of the router's own hook set.
func (r *Router) Hooks() Hooks {
	return r.hooks
}

// AllHooks returns the hook sets consulted during dispatch: the router's
// own followed by each directly embedded plugin's, in Use order.
func (r *Router) AllHooks() []Hooks {
	out := make([]Hooks, 0, len(r.plugins)+1)
	out = append(out, r.hooks)
	for _, p := range r.plugins {
		out = append(out, p.hooks)
	}
	return out
}
