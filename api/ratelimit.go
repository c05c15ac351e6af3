/*
ratelimit.go - Per-IP rate limiting middleware

PURPOSE:
  Token-bucket limiting keyed by client IP. Buckets expire after a few
  minutes of inactivity so the map does not grow with every address ever
  seen.

SEE ALSO:
  - server.go: Where the middleware is mounted
*/
package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterTTL = 5 * time.Minute

type ipLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimit returns middleware applying a per-IP token bucket.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if burst < 1 {
		burst = 1
	}

	var (
		mu       sync.Mutex
		limiters = map[string]*ipLimiter{}
	)

	get := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		for k, l := range limiters {
			if now.After(l.expires) {
				delete(limiters, k)
			}
		}

		if l, ok := limiters[key]; ok {
			l.expires = now.Add(limiterTTL)
			return l.limiter
		}
		l := &ipLimiter{
			limiter: rate.NewLimiter(rate.Limit(rps), burst),
			expires: now.Add(limiterTTL),
		}
		limiters[key] = l
		return l.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !get(clientIP(r)).Allow() {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
