package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/zap"
)

// ErrNoCredentials is returned by providers when the request carries no
// credentials of the expected kind.
var ErrNoCredentials = errors.New("no credentials")

// ErrInvalidCredentials is returned by the map-backed lookups when the
// credentials are not recognized.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthProvider authenticates a request and returns the principal it
// belongs to. Different authentication mechanisms implement this interface
// to be used with the Auth plugin.
type AuthProvider[T any] interface {
	Authenticate(c *router.Context) (*T, error)
}

// AuthFunc adapts a function to AuthProvider.
type AuthFunc[T any] func(c *router.Context) (*T, error)

// Authenticate implements AuthProvider.
func (f AuthFunc[T]) Authenticate(c *router.Context) (*T, error) { return f(c) }

// BasicAuthProvider provides HTTP Basic Authentication.
type BasicAuthProvider[T any] struct {
	GetUser func(username, password string) (*T, error)
	Realm   string
}

// Authenticate implements AuthProvider.
func (p *BasicAuthProvider[T]) Authenticate(c *router.Context) (*T, error) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		return nil, ErrNoCredentials
	}
	return p.GetUser(username, password)
}

// BearerTokenProvider provides Bearer Token Authentication.
type BearerTokenProvider[T any] struct {
	GetUser func(token string) (*T, error)
}

// Authenticate implements AuthProvider.
func (p *BearerTokenProvider[T]) Authenticate(c *router.Context) (*T, error) {
	token, ok := strings.CutPrefix(c.Header("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, ErrNoCredentials
	}
	return p.GetUser(token)
}

// APIKeyProvider provides API Key Authentication from a header or a query
// parameter. The header is checked first.
type APIKeyProvider[T any] struct {
	GetUser func(key string) (*T, error)
	Header  string // e.g. "X-API-Key"
	Query   string // e.g. "api_key"
}

// Authenticate implements AuthProvider.
func (p *APIKeyProvider[T]) Authenticate(c *router.Context) (*T, error) {
	if p.Header != "" {
		if key := c.Header(p.Header); key != "" {
			return p.GetUser(key)
		}
	}
	if p.Query != "" {
		if key := c.QueryParam(p.Query); key != "" {
			return p.GetUser(key)
		}
	}
	return nil, ErrNoCredentials
}

// Credentials returns a Basic auth lookup over a fixed username to
// password map. The principal is the username.
func Credentials(users map[string]string) func(username, password string) (*string, error) {
	return func(username, password string) (*string, error) {
		expected, ok := users[username]
		if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
			return nil, ErrInvalidCredentials
		}
		return &username, nil
	}
}

// Keys returns a token or API key lookup over a fixed set. The principal
// is the key itself.
func Keys(valid ...string) func(key string) (*string, error) {
	return func(key string) (*string, error) {
		for _, v := range valid {
			if subtle.ConstantTimeCompare([]byte(v), []byte(key)) == 1 {
				return &key, nil
			}
		}
		return nil, ErrInvalidCredentials
	}
}

type userKey[T any] struct{}

// Auth returns a plugin that authenticates every request with provider.
// Failures short-circuit with a 401 JSON response; on success the
// principal is available to later hooks and handlers through User.
func Auth[T any](provider AuthProvider[T], logger *zap.Logger) *router.Router {
	p := newPlugin(logger)
	log := p.Logger()

	p.OnRequest(func(c *router.Context) (router.Step, error) {
		user, err := provider.Authenticate(c)
		if err != nil || user == nil {
			log.Warn("Authentication failed",
				zap.Error(err),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.Request.RemoteAddr),
			)
			resp := router.JSONResponse(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			if basic, ok := provider.(*BasicAuthProvider[T]); ok {
				realm := basic.Realm
				if realm == "" {
					realm = "restricted"
				}
				resp.Header.Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
			}
			return router.ShortCircuit(resp), nil
		}

		c.SetValue(userKey[T]{}, user)
		return router.Continue(nil), nil
	})

	return p
}

// User returns the principal stored by Auth[T].
func User[T any](c *router.Context) (*T, bool) {
	user, ok := c.Value(userKey[T]{}).(*T)
	return user, ok
}
