package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/router"
)

// CORSConfig configures the CORS plugin.
type CORSConfig struct {
	// AllowOrigins lists the accepted origins. "*" accepts any origin.
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS returns a plugin that answers preflight requests and decorates
// responses to accepted origins. It also registers a catch-all OPTIONS
// route so preflights for paths without one still reach the plugin.
func CORS(config CORSConfig) *router.Router {
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}

	p := newPlugin(nil)

	p.OnRequest(func(c *router.Context) (router.Step, error) {
		origin := c.Header("Origin")
		if origin == "" {
			return router.Continue(nil), nil
		}
		if !config.allows(origin) {
			return router.Continue(nil), nil
		}

		if c.Request.Method == http.MethodOptions && c.Header("Access-Control-Request-Method") != "" {
			resp := router.NewResponse(http.StatusNoContent, nil)
			config.apply(resp.Header, origin)
			resp.Header.Set("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
			if len(config.AllowHeaders) > 0 {
				resp.Header.Set("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
			} else if requested := c.Header("Access-Control-Request-Headers"); requested != "" {
				resp.Header.Set("Access-Control-Allow-Headers", requested)
			}
			if config.MaxAge > 0 {
				resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(int(config.MaxAge.Seconds())))
			}
			return router.ShortCircuit(resp), nil
		}

		config.apply(c.Set.Headers, origin)
		return router.Continue(nil), nil
	})

	p.OnResponse(func(c *router.Context, value any) (router.Step, error) {
		resp, ok := value.(*router.Response)
		if !ok || resp == nil {
			return router.Continue(nil), nil
		}
		if origin := c.Header("Origin"); origin != "" && config.allows(origin) {
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			config.apply(resp.Header, origin)
		}
		return router.Continue(nil), nil
	})

	// Reached only for OPTIONS requests that are not preflights.
	p.Options("/*", func(c *router.Context) (any, error) {
		resp := router.NewResponse(http.StatusNoContent, nil)
		resp.Header.Set("Allow", strings.Join(append([]string{http.MethodOptions}, config.AllowMethods...), ", "))
		return resp, nil
	})

	return p
}

func (cfg CORSConfig) allows(origin string) bool {
	return slices.Contains(cfg.AllowOrigins, "*") || slices.Contains(cfg.AllowOrigins, origin)
}

func (cfg CORSConfig) apply(h http.Header, origin string) {
	if slices.Contains(cfg.AllowOrigins, "*") && !cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(cfg.ExposeHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
	}
}
