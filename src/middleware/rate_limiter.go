package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry holds a rate limiter with last used timestamp
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// keyRateLimiter manages per-key rate limiters with automatic cleanup
type keyRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
	stopCh   chan struct{}
}

func newKeyRateLimiter(limit rate.Limit, burst int) *keyRateLimiter {
	k := &keyRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		stopCh:   make(chan struct{}),
	}
	// Start cleanup goroutine
	go k.cleanupLoop()
	return k
}

func (k *keyRateLimiter) getLimiter(key string) *rate.Limiter {
	k.mu.RLock()
	entry, ok := k.limiters[key]
	k.mu.RUnlock()
	if ok {
		// Update last used time
		k.mu.Lock()
		entry.lastUsed = time.Now()
		k.mu.Unlock()
		return entry.limiter
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	// Double-check under write lock
	if entry, ok = k.limiters[key]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(k.limit, k.burst)
	k.limiters[key] = &limiterEntry{
		limiter:  limiter,
		lastUsed: time.Now(),
	}
	return limiter
}

// cleanupLoop removes stale entries every 5 minutes
func (k *keyRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanup()
		case <-k.stopCh:
			return
		}
	}
}

// cleanup removes entries not used in the last 10 minutes
func (k *keyRateLimiter) cleanup() {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for key, entry := range k.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
}

// Stop terminates the cleanup goroutine
func (k *keyRateLimiter) Stop() {
	close(k.stopCh)
}

// RateLimitConfig defines configuration for the rate limiting middleware
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

func (cfg RateLimitConfig) limiter(defaultPerMinute, defaultBurst int) *keyRateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return newKeyRateLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.Burst)
}

func rejectRateLimited(c *gin.Context) {
	c.Header("Retry-After", "60")
	abortWithError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, try again later")
}

// NewUserRateLimitingMiddleware enforces per-user limits. It must run after
// UserAuthMiddleware; unauthenticated requests share the client IP's bucket.
func NewUserRateLimitingMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := cfg.limiter(10, 5)

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + userID.String()
		}

		if !limiter.getLimiter(key).Allow() {
			rejectRateLimited(c)
			return
		}
		c.Next()
	}
}

// NewIPRateLimitingMiddleware enforces per-IP limits
func NewIPRateLimitingMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := cfg.limiter(60, 10)

	return func(c *gin.Context) {
		if !limiter.getLimiter(c.ClientIP()).Allow() {
			rejectRateLimited(c)
			return
		}
		c.Next()
	}
}
