package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by client address ("ip:203.0.113.7").
func KeyByClientIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// KeyByRouteAndIP gives every registered route its own bucket per client, so
// a burst of list calls cannot starve sends from the same address. Unmatched
// requests share one "*" bucket.
func KeyByRouteAndIP() keyFunc {
	return func(c *gin.Context) string {
		route := c.FullPath()
		if route == "" {
			route = "*"
		}
		return route + "|ip:" + c.ClientIP()
	}
}

// maxRetryAfter caps the advertised wait when a bucket never refills (rps 0).
const maxRetryAfter = 60 * time.Second

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token-bucket limiter with one bucket per
// key. Buckets idle for longer than ttl are swept at most once per ttl.
// It is not an authorization mechanism. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		ttl:       10 * time.Minute,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// limiterFor returns the bucket for key, creating it on first use. Idle
// buckets are swept before the lookup so a stale entry is recreated fresh.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether the request was marked to skip rate limiting,
// either by IdempotencyValidator (a replayed send) or by BypassRateLimit.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// BypassRateLimit exempts the given registered routes (c.FullPath) from rate
// limiting. Install it before Handler. The mail webhook uses it: the push
// service retries on 429 and a throttled notification only delays ingestion.
func BypassRateLimit(routes ...string) gin.HandlerFunc {
	exempt := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		exempt[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := exempt[c.FullPath()]; ok {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

// Handler enforces the limit. A rejected request gets 429 with the standard
// error body and a Retry-After header holding the whole seconds until the
// bucket has a token again.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		res := rl.limiterFor(rl.keyFn(c)).Reserve()
		delay := res.Delay()
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		res.Cancel()

		c.Header("Retry-After", retryAfter(delay))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter renders d as whole seconds, at least 1 and at most maxRetryAfter.
func retryAfter(d time.Duration) string {
	if d <= 0 {
		d = time.Second
	}
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
