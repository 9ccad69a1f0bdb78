// Package ratelimit throttles API callers with a token bucket per user or IP.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	log     *zap.Logger
	now     func() time.Time
}

func New(requestsPerSecond, burst int, log *zap.Logger) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		rate:    rate.Limit(requestsPerSecond),
		burst:   burst,
		log:     log,
		now:     time.Now,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = l.now()
	return e.limiter
}

// Middleware keys on the authenticated user when present, otherwise the client IP.
// Register it after auth on protected groups to get per-user buckets.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := auth.UserUUID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !l.get(key).Allow() {
			l.log.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(l.rate)))
			response.SendAPIResponse(c, http.StatusTooManyRequests, false, "rate limit exceeded", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Sweep drops buckets idle for longer than maxIdle.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	s := int(1 / float64(r))
	if s < 1 {
		return 1
	}
	return s
}
