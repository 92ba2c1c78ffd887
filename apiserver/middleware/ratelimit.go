package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ipEntry counts one client IP's requests in its current fixed window,
// which ends at windowEnd.
type ipEntry struct {
	count     int
	windowEnd time.Time
}

type slidingWindowLimiter struct {
	mu       sync.Mutex
	entries  map[string]*ipEntry
	max      int
	window   time.Duration
	stop     chan struct{}
}

func newSlidingWindowLimiter(max int, window time.Duration) *slidingWindowLimiter {
	l := &slidingWindowLimiter{
		entries: make(map[string]*ipEntry),
		max:     max,
		window:  window,
		stop:    make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.cleanup()
			case <-l.stop:
				return
			}
		}
	}()
	return l
}

func (l *slidingWindowLimiter) cleanup() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if now.After(e.windowEnd) {
			delete(l.entries, ip)
		}
	}
}

func (l *slidingWindowLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	e, ok := l.entries[ip]
	if !ok || now.After(e.windowEnd) {
		l.entries[ip] = &ipEntry{count: 1, windowEnd: now.Add(l.window)}
		return true
	}
	e.count++
	return e.count <= l.max
}

// RateLimit bounds requests per client IP to max within window, applied to
// the /api/remote/* and /api/download surfaces in place of the teacher's
// login-only limiter.
func RateLimit(max int, window time.Duration) (gin.HandlerFunc, func()) {
	limiter := newSlidingWindowLimiter(max, window)
	mw := func(c *gin.Context) {
		if max <= 0 {
			c.Next()
			return
		}
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status": "error", "message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
	return mw, func() { close(limiter.stop) }
}
