package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// RateLimitStrategy selects how requests are grouped into buckets.
type RateLimitStrategy string

const (
	// StrategyIP keys buckets by client IP (see ClientIP).
	StrategyIP RateLimitStrategy = "ip"
	// StrategyCustom keys buckets with RateLimitConfig.KeyExtractor.
	StrategyCustom RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Unique identifier for this rate limit bucket.
	// Plugins sharing a BucketName and Limiter share their counts.
	BucketName string

	// Maximum number of requests allowed in the time window
	Limit int

	// Time window for the rate limit. Defaults to one second.
	Window time.Duration

	Strategy RateLimitStrategy

	// KeyExtractor is used when Strategy is StrategyCustom. An error
	// fails the request through the error hooks.
	KeyExtractor func(c *router.Context) (string, error)

	// Limiter defaults to a new UberRateLimiter.
	Limiter RateLimiter

	// ExceededResponse builds the rejection response. The rate limit
	// headers are added to it. Defaults to a 429 JSON error body.
	ExceededResponse func(c *router.Context) *router.Response
}

// RateLimiter defines the interface for rate limiting algorithms
type RateLimiter interface {
	// Allow reports whether a request for key is admitted, how many
	// requests remain in the window and how long until it resets.
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

type window struct {
	start time.Time
	end   time.Time
	count int
}

// UberRateLimiter admits requests with a fixed-window counter per key.
// When Pace is set, admitted requests are additionally spread out with
// Uber's leaky-bucket limiter at limit/window requests per second, which
// blocks the calling hook until a slot is free.
//
// Expired windows, and the pacing limiters of their keys, are dropped at
// most once per window length, so memory follows the number of recently
// seen keys.
type UberRateLimiter struct {
	Pace bool

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
	limiters  sync.Map // map[string]ratelimit.Limiter
	now       func() time.Time
}

// NewUberRateLimiter creates a new rate limiter using Uber's ratelimit library
func NewUberRateLimiter() *UberRateLimiter {
	return &UberRateLimiter{windows: make(map[string]*window), now: time.Now}
}

// getLimiter gets or creates a pacing limiter for the given key and rate
func (u *UberRateLimiter) getLimiter(key string, rps int) ratelimit.Limiter {
	if limiter, ok := u.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}
	limiter, _ := u.limiters.LoadOrStore(key, ratelimit.New(rps, ratelimit.WithSlack(rps)))
	return limiter.(ratelimit.Limiter)
}

// Allow implements RateLimiter.
func (u *UberRateLimiter) Allow(key string, limit int, win time.Duration) (bool, int, time.Duration) {
	if win <= 0 {
		win = time.Second
	}
	if limit <= 0 {
		limit = 1
	}

	u.mu.Lock()
	now := u.now()
	u.sweep(now, win)
	w, ok := u.windows[key]
	if !ok || now.Sub(w.start) >= win {
		w = &window{start: now, end: now.Add(win)}
		u.windows[key] = w
	}
	reset := win - now.Sub(w.start)
	if w.count >= limit {
		u.mu.Unlock()
		return false, 0, reset
	}
	w.count++
	remaining := limit - w.count
	u.mu.Unlock()

	if u.Pace {
		rps := int(float64(limit) / win.Seconds())
		if rps < 1 {
			rps = 1
		}
		u.getLimiter(key, rps).Take()
	}
	return true, remaining, reset
}

// sweep drops expired windows. It must be called with u.mu held.
func (u *UberRateLimiter) sweep(now time.Time, win time.Duration) {
	if now.Before(u.nextSweep) {
		return
	}
	u.nextSweep = now.Add(win)
	for key, w := range u.windows {
		if !now.Before(w.end) {
			delete(u.windows, key)
			u.limiters.Delete(key)
		}
	}
}

// RateLimit returns a plugin that rejects requests over the configured
// rate with a short-circuited 429 response. Admitted responses carry the
// X-RateLimit-* headers.
func RateLimit(config RateLimitConfig, logger *zap.Logger) *router.Router {
	if config.Limiter == nil {
		config.Limiter = NewUberRateLimiter()
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}

	p := newPlugin(logger)
	log := p.Logger()

	p.OnRequest(func(c *router.Context) (router.Step, error) {
		key := ClientIPOf(c)
		if config.Strategy == StrategyCustom && config.KeyExtractor != nil {
			var err error
			if key, err = config.KeyExtractor(c); err != nil {
				log.Error("Failed to extract rate limit key",
					zap.Error(err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				return router.Continue(nil), err
			}
		}

		allowed, remaining, reset := config.Limiter.Allow(config.BucketName+":"+key, config.Limit, config.Window)

		headers := http.Header{}
		headers.Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if !allowed {
			log.Warn("Rate limit exceeded",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("key", key),
				zap.Int("limit", config.Limit),
			)

			var resp *router.Response
			if config.ExceededResponse != nil {
				resp = config.ExceededResponse(c)
			}
			if resp == nil {
				resp = router.JSONResponse(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			}
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			for k, vs := range headers {
				resp.Header[k] = vs
			}
			resp.Header.Set("Retry-After", strconv.Itoa(int(reset.Seconds()+0.5)))
			return router.ShortCircuit(resp), nil
		}

		for k, vs := range headers {
			c.Set.Headers[k] = vs
		}
		return router.Continue(nil), nil
	})

	return p
}
