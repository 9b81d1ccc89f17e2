package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Suhaibinator/SDispatch/pkg/validation"
)

// Error kinds produced by the dispatcher. Match them with errors.Is.
var (
	// ErrRouteNotFound is reported when no route matches the method and path.
	ErrRouteNotFound = errors.New("route not found")

	// ErrRequestValidation is reported when a request part fails its schema.
	ErrRequestValidation = errors.New("request validation failed")

	// ErrResponseValidation is reported when a handler's value fails the
	// route's response schema. The handler's side effects are not rolled back.
	ErrResponseValidation = errors.New("response validation failed")

	// ErrUpgradeFailed is reported when a WebSocket handshake is rejected.
	ErrUpgradeFailed = errors.New("websocket upgrade failed")
)

// HTTPError represents an HTTP error with a status code and message.
// It can be used to return specific HTTP errors from handlers.
// When no error hook supplies a response, the router uses the status code
// and message to build the default error body.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message to be sent in the response body
}

// Error implements the error interface.
// It returns a string representation of the HTTP error in the format "status: message".
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
// It's a convenience function for creating HTTP errors in handlers.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// HaltError carries a ready-made response out of a hook or handler.
// Wherever it surfaces, the dispatcher stops and writes the response verbatim.
type HaltError struct {
	Response *Response
}

// Error implements the error interface.
func (e *HaltError) Error() string {
	if e.Response == nil {
		return "halted"
	}
	return fmt.Sprintf("halted with status %d", e.Response.Status)
}

// Halt returns an error that short-circuits dispatch with resp.
// It is the error-return counterpart of ShortCircuit, useful from helpers
// that can only report an error.
func Halt(resp *Response) error {
	return &HaltError{Response: resp}
}

// haltedResponse extracts the response carried by a HaltError, if any.
func haltedResponse(err error) (*Response, bool) {
	var h *HaltError
	if errors.As(err, &h) && h.Response != nil {
		return h.Response, true
	}
	return nil, false
}

// ValidationError reports request or response validation failures.
// Kind is ErrRequestValidation or ErrResponseValidation, so errors.Is
// tells the two apart.
type ValidationError struct {
	Kind   error
	Issues []validation.Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Kind.Error() + ": " + (&validation.Error{Issues: e.Issues}).Error()
}

// Unwrap returns the error kind.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// panicError is a recovered panic. Its value is logged but never sent to
// clients.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// errorBody is the JSON shape of every error the dispatcher writes itself.
type errorBody struct {
	Error   string             `json:"error"`
	Details []validation.Issue `json:"details,omitempty"`
}

// statusOf returns the status an unrecovered error should be reported with.
func statusOf(err error) (int, string) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, httpErr.Message
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	return http.StatusInternalServerError, err.Error()
}
