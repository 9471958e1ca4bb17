package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/inkwave/inkwave/sync-engine/pkg/metrics"
)

// limiterStore holds per-key token-bucket limiters for one middleware
// instance. Each RateLimitMiddleware call gets its own store so two
// instances with different rps/burst never share buckets.
type limiterStore struct {
	rps   float64
	burst int
	byKey sync.Map // map[string]*rate.Limiter
}

// get returns (and lazily creates) the limiter for the given key
func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.byKey.Load(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(s.rps), s.burst)
	actual, _ := s.byKey.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}

// rateKey picks the limiter key: the authenticated subject when present,
// otherwise the client IP.
func rateKey(c *gin.Context) string {
	if v, ok := c.Get("claims"); ok {
		if cm, ok2 := v.(map[string]interface{}); ok2 {
			if sub, ok3 := cm["sub"].(string); ok3 && sub != "" {
				return "sub:" + sub
			}
		}
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{rps: rps, burst: burst}
	return func(c *gin.Context) {
		lim := store.get(rateKey(c))
		if !lim.Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
