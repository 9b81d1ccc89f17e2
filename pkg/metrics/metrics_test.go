package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// counterValue returns the value of the named series whose labels include
// every pair in labels, or -1 if no series matches.
func counterValue(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	series:
		for _, m := range fam.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func newInstrumentedRouter(t *testing.T, cfg Config) (*router.Router, *Collector) {
	t.Helper()
	col, err := NewCollector(cfg)
	require.NoError(t, err)

	r := router.NewRouter(router.RouterConfig{
		Logger:      zap.NewNop(),
		Middlewares: []router.Middleware{col.Middleware()},
	})
	r.Use(col.Plugin())
	r.Get("/users/:id", func(c *router.Context) (any, error) {
		return map[string]string{"id": c.Param("id")}, nil
	})
	r.Get("/fail", func(c *router.Context) (any, error) {
		return nil, errors.New("boom")
	})
	r.Get("/missing", func(c *router.Context) (any, error) {
		return nil, router.NewHTTPError(http.StatusNotFound, "no such thing")
	})
	return r, col
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestPluginRecordsRouteMetrics(t *testing.T) {
	r, col := newInstrumentedRouter(t, DefaultConfig())

	get(r, "/users/1")
	get(r, "/users/2")
	get(r, "/fail")
	get(r, "/missing")

	assert.Equal(t, 2.0, counterValue(t, col, "sdispatch_requests_total",
		map[string]string{"route": "/users/:id", "status": "200", "method": "GET"}))
	assert.Equal(t, 1.0, counterValue(t, col, "sdispatch_requests_total",
		map[string]string{"route": "/fail", "status": "500"}))
	assert.Equal(t, 1.0, counterValue(t, col, "sdispatch_request_errors_total",
		map[string]string{"route": "/missing", "status": "404"}))
	assert.Equal(t, 2.0, counterValue(t, col, "sdispatch_request_duration_seconds",
		map[string]string{"route": "/users/:id"}))
	assert.Equal(t, -1.0, counterValue(t, col, "sdispatch_request_errors_total",
		map[string]string{"route": "/users/:id"}))
}

func TestMiddlewareTracksAllRequests(t *testing.T) {
	r, col := newInstrumentedRouter(t, DefaultConfig())

	rr := get(r, "/users/1")
	get(r, "/not-registered")

	assert.Equal(t, 0.0, counterValue(t, col, "sdispatch_requests_in_flight", nil))
	size := counterValue(t, col, "sdispatch_response_size_bytes_total", map[string]string{"method": "GET"})
	assert.Greater(t, size, float64(rr.Body.Len()), "404 body bytes should be counted too")
	assert.Equal(t, -1.0, counterValue(t, col, "sdispatch_requests_total",
		map[string]string{"route": "/not-registered"}), "unmatched paths never reach hooks")
}

func TestDisabledMetrics(t *testing.T) {
	r, col := newInstrumentedRouter(t, Config{Namespace: "app"})
	get(r, "/fail")

	assert.Equal(t, 1.0, counterValue(t, col, "app_requests_total", map[string]string{"status": "500"}))
	assert.Equal(t, -1.0, counterValue(t, col, "app_request_errors_total", nil))
	assert.Equal(t, -1.0, counterValue(t, col, "app_request_duration_seconds", nil))
}

func TestFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filter = func(c *router.Context) bool { return c.Path != "/fail" }
	r, col := newInstrumentedRouter(t, cfg)

	get(r, "/fail")
	get(r, "/users/1")

	assert.Equal(t, -1.0, counterValue(t, col, "sdispatch_requests_total", map[string]string{"route": "/fail"}))
	assert.Equal(t, 1.0, counterValue(t, col, "sdispatch_requests_total", map[string]string{"route": "/users/:id"}))
}

func TestHandlerExposesRegistry(t *testing.T) {
	r, col := newInstrumentedRouter(t, DefaultConfig())
	get(r, "/users/1")

	rr := get(col.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `sdispatch_requests_total{method="GET",route="/users/:id",status="200"} 1`))
}

func TestDuplicateRegistration(t *testing.T) {
	cfg := DefaultConfig()
	first, err := NewCollector(cfg)
	require.NoError(t, err)

	cfg.Registry = first.Registry()
	_, err = NewCollector(cfg)
	assert.Error(t, err)
}
