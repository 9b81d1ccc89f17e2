package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// newTestRouter returns a router that logs nowhere.
func newTestRouter() *Router {
	return NewRouter(RouterConfig{Logger: zap.NewNop()})
}

// serve performs a request against h and returns the recorder.
func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

// echoParams returns the raw path parameters as JSON.
func echoParams(c *Context) (any, error) {
	return c.Params, nil
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rr.Body.String(), err)
	}
}

func TestParamIsPercentDecoded(t *testing.T) {
	r := newTestRouter()
	r.Get("/users/:id", echoParams)

	rr := serve(r, http.MethodGet, "/users/42%20a")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}

	var params map[string]string
	decodeJSON(t, rr, &params)
	if params["id"] != "42 a" {
		t.Errorf("Expected id %q, got %q", "42 a", params["id"])
	}
}

func TestFirstRegisteredRouteWins(t *testing.T) {
	r := newTestRouter()
	r.Get("/a/:x", echoParams)
	r.Get("/a/b", func(c *Context) (any, error) {
		return "literal", nil
	})

	rr := serve(r, http.MethodGet, "/a/b")

	var params map[string]string
	decodeJSON(t, rr, &params)
	if params["x"] != "b" {
		t.Errorf("Expected the parameter route to bind x=%q, got %v", "b", params)
	}
}

func TestDuplicateRegistrationFirstWins(t *testing.T) {
	r := newTestRouter()
	r.Get("/dup", func(c *Context) (any, error) { return "first", nil })
	r.Get("/dup", func(c *Context) (any, error) { return "second", nil })

	if len(r.Routes()) != 2 {
		t.Errorf("Expected 2 registered routes, got %d", len(r.Routes()))
	}

	rr := serve(r, http.MethodGet, "/dup")
	if rr.Body.String() != "first" {
		t.Errorf("Expected body %q, got %q", "first", rr.Body.String())
	}
}

func TestWildcardBindsRemainder(t *testing.T) {
	r := newTestRouter()
	r.Get("/files/*", echoParams)

	rr := serve(r, http.MethodGet, "/files/docs//a%2Fb/readme.md/")

	var params map[string]string
	decodeJSON(t, rr, &params)
	if params["*"] != "docs/a/b/readme.md" {
		t.Errorf("Expected wildcard %q, got %q", "docs/a/b/readme.md", params["*"])
	}
}

func TestMethodMustMatch(t *testing.T) {
	r := newTestRouter()
	r.Post("/items", func(c *Context) (any, error) { return "created", nil })

	rr := serve(r, http.MethodGet, "/items")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestNotFoundSkipsHooks(t *testing.T) {
	r := newTestRouter()
	calls := 0
	r.OnRequest(func(c *Context) (Step, error) {
		calls++
		return Continue(nil), nil
	})
	r.OnError(func(c *Context, err error) Step {
		calls++
		return Continue(nil)
	})

	rr := serve(r, http.MethodGet, "/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, rr.Code)
	}
	if calls != 0 {
		t.Errorf("Expected no hooks to run, got %d calls", calls)
	}

	var body map[string]any
	decodeJSON(t, rr, &body)
	if body["error"] != ErrRouteNotFound.Error() {
		t.Errorf("Expected error %q, got %v", ErrRouteNotFound.Error(), body["error"])
	}
}

func TestCustomNotFoundHandler(t *testing.T) {
	r := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		NotFoundHandler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "nothing here", http.StatusNotFound)
		}),
	})

	rr := serve(r, http.MethodGet, "/missing")
	if rr.Body.String() != "nothing here\n" {
		t.Errorf("Expected custom body, got %q", rr.Body.String())
	}
}

func TestPluginRoutesAfterOwn(t *testing.T) {
	parent := newTestRouter()
	plugin := newTestRouter()

	parent.Get("/shared", func(c *Context) (any, error) { return "parent", nil })
	plugin.Get("/shared", func(c *Context) (any, error) { return "plugin", nil })
	plugin.Get("/plugin-only", func(c *Context) (any, error) { return "plugin", nil })
	parent.Use(plugin)

	if got := serve(parent, http.MethodGet, "/shared").Body.String(); got != "parent" {
		t.Errorf("Expected own route to win, got %q", got)
	}
	if got := serve(parent, http.MethodGet, "/plugin-only").Body.String(); got != "plugin" {
		t.Errorf("Expected plugin route to be reachable, got %q", got)
	}
}

func TestPluginMutationAfterUseIsVisible(t *testing.T) {
	parent := newTestRouter()
	plugin := newTestRouter()
	parent.Use(plugin)

	plugin.Get("/late", func(c *Context) (any, error) { return "late", nil })

	if got := serve(parent, http.MethodGet, "/late").Body.String(); got != "late" {
		t.Errorf("Expected route registered after Use to be visible, got %q", got)
	}
}

func TestFlatteningIsOneLevel(t *testing.T) {
	parent := newTestRouter()
	child := newTestRouter()
	grandchild := newTestRouter()

	grandchild.Get("/deep", func(c *Context) (any, error) { return "deep", nil })
	grandchild.OnRequest(func(c *Context) (Step, error) { return Continue(nil), nil })
	child.Use(grandchild)
	parent.Use(child)

	if len(parent.AllRoutes()) != 0 {
		t.Errorf("Expected grandchild routes to be excluded, got %d routes", len(parent.AllRoutes()))
	}
	if len(parent.AllHooks()) != 2 {
		t.Errorf("Expected 2 hook sets (own + child), got %d", len(parent.AllHooks()))
	}
	if rr := serve(parent, http.MethodGet, "/deep"); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, rr.Code)
	}
	if got := serve(child, http.MethodGet, "/deep").Body.String(); got != "deep" {
		t.Errorf("Expected child to reach its own plugin, got %q", got)
	}
}

func TestUseIgnoresSelfAndNil(t *testing.T) {
	r := newTestRouter()
	r.Use(r).Use(nil)
	if len(r.Plugins()) != 0 {
		t.Errorf("Expected no plugins, got %d", len(r.Plugins()))
	}
}

func TestHookReRegistrationOverwrites(t *testing.T) {
	r := newTestRouter()
	var got []string
	r.OnRequest(func(c *Context) (Step, error) {
		got = append(got, "first")
		return Continue(nil), nil
	})
	r.OnRequest(func(c *Context) (Step, error) {
		got = append(got, "second")
		return Continue(nil), nil
	})
	r.Get("/", func(c *Context) (any, error) { return "ok", nil })

	serve(r, http.MethodGet, "/")
	if len(got) != 1 || got[0] != "second" {
		t.Errorf("Expected only the second hook to run, got %v", got)
	}
}

func TestInvalidPatternPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected registration of a duplicate parameter name to panic")
		}
	}()
	newTestRouter().Get("/a/:id/b/:id", echoParams)
}

func TestFluentRegistration(t *testing.T) {
	h := func(c *Context) (any, error) { return c.Request.Method, nil }
	r := newTestRouter().
		Get("/m", h).
		Post("/m", h).
		Put("/m", h).
		Delete("/m", h).
		Patch("/m", h).
		Options("/m", h).
		Head("/m", h)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions} {
		if got := serve(r, method, "/m").Body.String(); got != method {
			t.Errorf("Expected %s route to answer %q, got %q", method, method, got)
		}
	}
	if rr := serve(r, http.MethodHead, "/m"); rr.Code != http.StatusOK {
		t.Errorf("Expected HEAD status code %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestMiddlewaresWrapDispatcher(t *testing.T) {
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Middleware", "yes")
			next.ServeHTTP(w, req)
		})
	}
	r := NewRouter(RouterConfig{Logger: zap.NewNop(), Middlewares: []Middleware{mw}})
	r.Get("/", func(c *Context) (any, error) { return "ok", nil })

	for _, target := range []string{"/", "/missing"} {
		rr := serve(r, http.MethodGet, target)
		if rr.Header().Get("X-Middleware") != "yes" {
			t.Errorf("Expected middleware header on %s", target)
		}
	}
}
