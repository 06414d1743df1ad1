package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/Tiliavir/timesheet-grid/internal/logging"
	"github.com/Tiliavir/timesheet-grid/internal/metrics"
)

// statusWriter captures the status code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// observe records request metrics and logs each request at debug level.
func observe(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := routePattern(r)
			elapsed := time.Since(start)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			logger.Debug(r.Context(), "request", "method", r.Method, "route", route,
				"status", wrapped.status, "duration", elapsed)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// limiterIdle is how long a client may stay quiet before its bucket is
// dropped. A dropped bucket starts full again, so it must exceed the time a
// bucket needs to refill.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per client IP.
type rateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*clientLimiter
	limit      rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time
}

// newRateLimiter allows perMinute requests per client, bursting up to burst.
// X-Real-IP is only honoured when trustProxy is set.
func newRateLimiter(perMinute, burst int, trustProxy bool) *rateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &rateLimiter{
		limiters:   make(map[string]*clientLimiter),
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      burst,
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	c, ok := rl.limiters[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// cleanup drops the buckets of clients not seen for idle.
func (rl *rateLimiter) cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, c := range rl.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// cleanupLoop sweeps idle buckets every interval until ctx is done.
func (rl *rateLimiter) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup(limiterIdle)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r, rl.trustProxy)) {
			metrics.HTTPRateLimitedTotal.Inc()
			JSONError(w, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP keys on the connection's address. Behind a reverse proxy every
// request shares the proxy's address, so trustProxy switches to X-Real-IP.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
