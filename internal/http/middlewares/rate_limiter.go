package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window counter per key. Re-detection shells out to OCR, so
// the admin trigger sits behind one.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	now     func() time.Time
	clients map[string]*window
}

type window struct {
	count int
	end   time.Time
}

func NewRateLimiter(limit int, w time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  w,
		now:     time.Now,
		clients: make(map[string]*window),
	}
}

// allow reports whether key may proceed and, if not, how long until its window resets.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok || !now.Before(b.end) {
		rl.clients[key] = &window{count: 1, end: now.Add(rl.window)}
		return true, 0
	}
	if b.count >= rl.limit {
		return false, b.end.Sub(now)
	}
	b.count++
	return true, 0
}

func (rl *RateLimiter) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		ok, wait := rl.allow(key)
		if !ok {
			secs := int(wait.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}
		c.Next()
	}
}

func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// KeyBySubjectOrIP keys authenticated callers by token subject.
func KeyBySubjectOrIP(c *gin.Context) string {
	if sub, ok := SubjectFromContext(c); ok && sub != "" {
		return "sub:" + sub
	}
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}
	return ip
}
