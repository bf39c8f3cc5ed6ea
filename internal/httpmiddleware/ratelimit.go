package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client IP.
type ClientLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewClientLimiter allows perMinute requests per client with bursts of
// burst. Idle clients are forgotten after ten minutes.
func NewClientLimiter(perMinute, burst int) *ClientLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &ClientLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		ttl:     10 * time.Minute,
		clients: make(map[string]*client),
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits. A non-positive
// rate disables limiting.
func (l *ClientLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *ClientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweep(now)
	}
	cl, ok := l.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.seen = now
	return cl.limiter.AllowN(now, 1)
}

// sweep drops clients idle for longer than ttl. allow calls it at most
// once per ttl.
func (l *ClientLimiter) sweep(now time.Time) {
	for k, cl := range l.clients {
		if now.Sub(cl.seen) > l.ttl {
			delete(l.clients, k)
		}
	}
	l.lastSweep = now
}
