package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const minLimiterIdle = 10 * time.Minute

// ClientRateLimiter stores a rate limiter for each client key. Limiters idle
// for longer than it takes to refill the bucket are evicted.
type ClientRateLimiter struct {
	clients *cache.Cache
	mu      sync.Mutex
	r       rate.Limit
	b       int
}

// NewClientRateLimiter creates a new ClientRateLimiter.
func NewClientRateLimiter(r rate.Limit, b int) *ClientRateLimiter {
	idle := minLimiterIdle
	if r > 0 && r != rate.Inf {
		if refill := time.Duration(float64(b) / float64(r) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return newClientRateLimiter(r, b, idle)
}

func newClientRateLimiter(r rate.Limit, b int, idle time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		clients: cache.New(idle, idle),
		r:       r,
		b:       b,
	}
}

// GetLimiter returns the rate limiter for a client key and marks it as used.
func (l *ClientRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter := rate.NewLimiter(l.r, l.b)
	if v, found := l.clients.Get(key); found {
		limiter = v.(*rate.Limiter)
	}
	l.clients.SetDefault(key, limiter)
	return limiter
}

// Len returns the number of tracked clients.
func (l *ClientRateLimiter) Len() int {
	return l.clients.ItemCount()
}

// clientKey uses the token subject when the caller proved it, so users behind
// one NAT do not share a budget. Gateway headers can be set by anyone who
// reaches the service, so those callers are keyed by IP like anonymous ones.
func clientKey(c *gin.Context) string {
	if id := IdentityFrom(c); id.Authenticated() && c.GetBool(verifiedKey) {
		return "user:" + id.UserID
	}
	return "ip:" + c.ClientIP()
}

// RateLimiter is a middleware for per-client rate limiting. It must run after
// Authenticate.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewClientRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(clientKey(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}
