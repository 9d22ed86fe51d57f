package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiter stores token-bucket limiters per client IP.
type rateLimiter struct {
	limiters map[string]*client
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	ttl      time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(limit rate.Limit, burst int, ttl time.Duration) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*client),
		rate:     limit,
		burst:    burst,
		ttl:      ttl,
	}
}

// getLimiter returns the limiter for ip, creating one if needed. Clients
// idle for longer than the ttl are forgotten.
func (rl *rateLimiter) getLimiter(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.limiters[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = c
		if len(rl.limiters) > 1024 {
			rl.sweepLocked(now)
		}
	}
	c.lastSeen = now
	return c.limiter
}

func (rl *rateLimiter) sweepLocked(now time.Time) {
	for ip, c := range rl.limiters {
		if now.Sub(c.lastSeen) > rl.ttl {
			delete(rl.limiters, ip)
		}
	}
}

// rateLimitMiddleware limits requests per client IP. A non-positive
// requestsPerMinute disables limiting.
func rateLimitMiddleware(requestsPerMinute, burst int) gin.HandlerFunc {
	if requestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := newRateLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst, 15*time.Minute)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}
		if !limiter.getLimiter(ip, time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
