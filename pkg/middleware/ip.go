package middleware

import (
	"net"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the request's RemoteAddr field
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the leftmost X-Forwarded-For entry
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses IPConfig.CustomHeader
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	Source       IPSourceType
	CustomHeader string

	// TrustProxy enables the header sources. When false RemoteAddr is
	// always used.
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

// ClientIP returns a plugin that resolves the client address and stores it
// in the request context for later hooks, handlers and rate limiting.
func ClientIP(config *IPConfig) *router.Router {
	if config == nil {
		config = DefaultIPConfig()
	}

	p := newPlugin(nil)
	p.OnRequest(func(c *router.Context) (router.Step, error) {
		c.Request = c.Request.WithContext(common.WithClientIP(c.Context(), extractClientIP(c, config)))
		return router.Continue(nil), nil
	})
	return p
}

// ClientIPOf returns the address stored by the ClientIP plugin, falling
// back to the request's RemoteAddr.
func ClientIPOf(c *router.Context) string {
	if ip := common.ClientIPFromContext(c.Context()); ip != "" {
		return ip
	}
	return cleanIP(c.Request.RemoteAddr)
}

func extractClientIP(c *router.Context, config *IPConfig) string {
	var ip string

	if config.TrustProxy {
		switch config.Source {
		case IPSourceXRealIP:
			ip = c.Header("X-Real-IP")
		case IPSourceCustomHeader:
			ip = c.Header(config.CustomHeader)
		case IPSourceRemoteAddr:
		default:
			ip = firstForwarded(c.Header("X-Forwarded-For"))
		}
	}

	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return cleanIP(strings.TrimSpace(ip))
}

// firstForwarded returns the leftmost, original-client entry of an
// X-Forwarded-For list.
func firstForwarded(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// cleanIP strips a port and IPv6 brackets if present.
func cleanIP(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")
}
