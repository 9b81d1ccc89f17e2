package middleware

import (
	"net/http"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/google/uuid"
)

// TraceHeader is the header carrying the trace ID in both directions.
const TraceHeader = "X-Trace-ID"

// TraceConfig configures the Trace plugin.
type TraceConfig struct {
	// TrustIncoming reuses a well-formed UUID from the request's trace
	// header instead of generating a new one.
	TrustIncoming bool

	// Header overrides TraceHeader.
	Header string
}

// Trace returns a plugin that assigns every request a trace ID.
// The ID is stored in the request context (see common.TraceIDFromContext
// and router.Context.TraceID) and echoed in the response header.
func Trace(config ...TraceConfig) *router.Router {
	var cfg TraceConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	header := cfg.Header
	if header == "" {
		header = TraceHeader
	}

	p := newPlugin(nil)

	p.OnRequest(func(c *router.Context) (router.Step, error) {
		traceID := ""
		if cfg.TrustIncoming {
			if id, err := uuid.Parse(c.Header(header)); err == nil {
				traceID = id.String()
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Request = c.Request.WithContext(common.WithTraceID(c.Context(), traceID))
		c.Set.Header(header, traceID)
		return router.Continue(nil), nil
	})

	// Pass-through responses ignore pending headers, so copy the ID onto them.
	p.OnResponse(func(c *router.Context, value any) (router.Step, error) {
		if resp, ok := value.(*router.Response); ok && resp != nil {
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			resp.Header.Set(header, c.TraceID())
		}
		return router.Continue(nil), nil
	})

	return p
}
