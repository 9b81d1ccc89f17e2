// Package metrics exposes Prometheus metrics for SDispatch routers.
//
// A Collector is attached in two places: Plugin embeds route-aware request
// metrics through the router's hooks, and Middleware wraps the whole
// dispatcher to track in-flight requests and response sizes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config configures a Collector.
type Config struct {
	Namespace string
	Subsystem string

	// Registry receives the collector's metrics. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry

	// Buckets for the latency histogram. Defaults to prometheus.DefBuckets.
	Buckets []float64

	// EnableLatency enables latency metrics
	EnableLatency bool
	// EnableThroughput enables response size metrics
	EnableThroughput bool
	// EnableErrors enables the error counter for 4xx and 5xx outcomes
	EnableErrors bool

	// Filter, when set, limits route metrics to requests it accepts.
	Filter func(c *router.Context) bool

	Logger *zap.Logger
}

// DefaultConfig returns a configuration with every metric enabled.
func DefaultConfig() Config {
	return Config{
		Namespace:        "sdispatch",
		EnableLatency:    true,
		EnableThroughput: true,
		EnableErrors:     true,
	}
}

// Collector owns the Prometheus metrics of one server.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	inFlight     prometheus.Gauge
	responseSize *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them.
func NewCollector(config Config) (*Collector, error) {
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: config.Namespace, Subsystem: config.Subsystem, Name: name, Help: help}
	}

	c := &Collector{
		config:   config,
		registry: config.Registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts(opts("requests_total", "Total number of handled requests")),
			[]string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts(opts("requests_in_flight", "Number of requests being served"))),
	}
	collectors := []prometheus.Collector{c.requests, c.inFlight}

	if config.EnableLatency {
		c.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds",
			Buckets:   config.Buckets,
		}, []string{"method", "route"})
		collectors = append(collectors, c.latency)
	}
	if config.EnableErrors {
		c.errors = prometheus.NewCounterVec(prometheus.CounterOpts(opts("request_errors_total", "Total number of failed requests")),
			[]string{"method", "route", "status"})
		collectors = append(collectors, c.errors)
	}
	if config.EnableThroughput {
		c.responseSize = prometheus.NewCounterVec(prometheus.CounterOpts(opts("response_size_bytes_total", "Total bytes written in responses")),
			[]string{"method"})
		collectors = append(collectors, c.responseSize)
	}

	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.config.Logger),
	})
}

type startKey struct{}

// Plugin returns a plugin recording route-labelled request counts,
// latency and errors. Requests short-circuited by a request hook that
// runs before the plugin's own are not observed.
func (c *Collector) Plugin() *router.Router {
	p := router.NewRouter(router.RouterConfig{Logger: c.config.Logger})

	p.OnRequest(func(ctx *router.Context) (router.Step, error) {
		if c.config.Filter == nil || c.config.Filter(ctx) {
			ctx.SetValue(startKey{}, time.Now())
		}
		return router.Continue(nil), nil
	})

	p.OnResponse(func(ctx *router.Context, value any) (router.Step, error) {
		c.observe(ctx, middleware.ResponseStatus(ctx, value))
		return router.Continue(nil), nil
	})

	p.OnError(func(ctx *router.Context, err error) router.Step {
		c.observe(ctx, middleware.ErrorStatus(err))
		return router.Continue(nil)
	})

	return p
}

func (c *Collector) observe(ctx *router.Context, status int) {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return
	}

	method := ctx.Request.Method
	route := ctx.Route.Pattern.String()
	code := strconv.Itoa(status)

	c.requests.WithLabelValues(method, route, code).Inc()
	if c.latency != nil {
		c.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
	if c.errors != nil && status >= 400 {
		c.errors.WithLabelValues(method, route, code).Inc()
	}
}

// Middleware returns a net/http middleware tracking in-flight requests and
// response sizes for everything the router serves, including 404s.
func (c *Collector) Middleware() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.inFlight.Inc()
			defer c.inFlight.Dec()

			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			if c.responseSize != nil {
				c.responseSize.WithLabelValues(r.Method).Add(float64(rw.bytesWritten))
			}
		})
	}
}

// responseWriter counts the bytes written through it.
type responseWriter struct {
	http.ResponseWriter
	bytesWritten int64
}

// Write captures the number of bytes written and calls the underlying ResponseWriter.Write
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController and WebSocket upgrades reach the
// underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
