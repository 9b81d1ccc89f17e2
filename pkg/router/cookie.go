package router

import (
	"net/http"
	"time"
)

// Cookie is a response cookie. Name and value are percent-encoded when
// rendered, so any string round-trips through the request cookie parser.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time     // zero means a session cookie
	MaxAge   *int          // nil omits Max-Age; 0 or negative is rendered as Max-Age=0 and expires the cookie
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite // zero omits the attribute
}

// MaxAge returns a pointer suitable for Cookie.MaxAge.
func MaxAge(seconds int) *int {
	return &seconds
}

// String renders the cookie as the value of a Set-Cookie header line.
func (c Cookie) String() string {
	hc := &http.Cookie{
		Name:     escapeCookie(c.Name),
		Value:    escapeCookie(c.Value),
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
	if c.MaxAge != nil {
		switch {
		case *c.MaxAge > 0:
			hc.MaxAge = *c.MaxAge
		default:
			// net/http writes "Max-Age=0" for negative values.
			hc.MaxAge = -1
		}
	}
	return hc.String()
}

// writeCookies adds one Set-Cookie line per cookie.
func writeCookies(h http.Header, cookies []Cookie) {
	for _, c := range cookies {
		if line := c.String(); line != "" {
			h.Add("Set-Cookie", line)
		}
	}
}
