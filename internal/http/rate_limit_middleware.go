package http

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = time.Hour
)

// clientLimiters keeps one token bucket per client IP. Buckets idle for longer than
// limiterIdleTimeout are dropped, at most once per limiterSweepInterval.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	*rate.Limiter
	seen time.Time
}

func newClientLimiters(rps float64, burst int, now time.Time) *clientLimiters {
	return &clientLimiters{
		limit:     rate.Limit(rps),
		burst:     burst,
		buckets:   make(map[string]*clientBucket),
		lastSweep: now,
	}
}

// wait reserves one token for ip. A zero result means the request may proceed; otherwise no
// token was consumed and the result is how long the client should back off.
func (l *clientLimiters) wait(ip string, now time.Time) time.Duration {
	bucket := l.bucket(ip, now)
	r := bucket.ReserveN(now, 1)
	if !r.OK() {
		return limiterIdleTimeout
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

func (l *clientLimiters) bucket(ip string, now time.Time) *clientBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		for key, b := range l.buckets {
			if now.Sub(b.seen) > limiterIdleTimeout {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &clientBucket{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b
}

// RateLimitMiddleware throttles each client IP to rps requests per second with the given burst.
// Throttled requests get 429 and a Retry-After header in whole seconds.
func RateLimitMiddleware(rps float64, burst int, logger *slog.Logger) gin.HandlerFunc {
	limiters := newClientLimiters(rps, burst, time.Now())

	return func(c *gin.Context) {
		ip := c.ClientIP()
		delay := limiters.wait(ip, time.Now())
		if delay == 0 {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(delay.Seconds()))
		logger.Debug("release request throttled",
			slog.String("client_ip", ip),
			slog.Int("retry_after", retryAfter))

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limit_exceeded",
			"message": "Too many release requests, retry later",
		})
	}
}
