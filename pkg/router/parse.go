package router

import (
	"net/http"
	"net/url"
	"strings"
)

// parseQuery flattens the query string. The last value of a repeated key wins.
func parseQuery(u *url.URL) map[string]string {
	values := u.Query()
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

// parseHeaders flattens request headers into lower-cased names. Repeated
// headers are joined with ", " as they would be on the wire.
func parseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return out
}

// parseCookies parses every Cookie header of the request. Pairs are split
// on the first "=" and both halves are percent-decoded; pairs without a
// value are skipped.
func parseCookies(h http.Header) map[string]string {
	out := make(map[string]string)
	for _, line := range h.Values("Cookie") {
		for _, pair := range strings.Split(line, ";") {
			pair = strings.TrimSpace(pair)
			name, value, ok := strings.Cut(pair, "=")
			if !ok || value == "" {
				continue
			}
			name = unescapeCookie(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			out[name] = unescapeCookie(strings.TrimSpace(value))
		}
	}
	return out
}

// unescapeCookie percent-decodes s, returning it unchanged when it is not
// a valid escape sequence.
func unescapeCookie(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

// escapeCookie percent-encodes s so that unescapeCookie restores it.
func escapeCookie(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
