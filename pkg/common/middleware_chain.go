package common

import (
	"net/http"
)

// MiddlewareChain is an ordered list of middlewares. The first element is
// the outermost wrapper.
type MiddlewareChain []Middleware

// NewMiddlewareChain creates a chain from the given middlewares.
func NewMiddlewareChain(middlewares ...Middleware) MiddlewareChain {
	return middlewares
}

// Append returns a chain with middlewares added at the inner end.
func (c MiddlewareChain) Append(middlewares ...Middleware) MiddlewareChain {
	out := make(MiddlewareChain, 0, len(c)+len(middlewares))
	out = append(out, c...)
	return append(out, middlewares...)
}

// Then wraps h so that a request passes through every middleware in order
// before reaching h. Nil entries are skipped.
func (c MiddlewareChain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i] == nil {
			continue
		}
		h = c[i](h)
	}
	return h
}
