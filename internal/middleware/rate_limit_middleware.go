package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"portfolio-analytics-api/internal/config"
)

// RateLimitMiddleware applies a per-client-IP token bucket. Limiters for idle
// IPs are evicted periodically so the map does not grow unbounded.
type RateLimitMiddleware struct {
	cfg      config.RateLimitConfig
	limiters map[string]*ipLimiter
	mu       sync.Mutex
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimitMiddleware(cfg config.RateLimitConfig) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		cfg:      cfg,
		limiters: make(map[string]*ipLimiter),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go m.cleanupLoop()
	}
	return m
}

// IPRateLimit rejects requests from clients that exceed their bucket.
func (m *RateLimitMiddleware) IPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.cfg.Enabled {
			c.Next()
			return
		}

		if !m.limiterFor(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *RateLimitMiddleware) limiterFor(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.limiters[ip]
	if !ok {
		perSecond := rate.Limit(float64(m.cfg.RequestsPerMin) / 60.0)
		entry = &ipLimiter{limiter: rate.NewLimiter(perSecond, m.cfg.BurstSize)}
		m.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (m *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-3 * m.cfg.CleanupInterval)
		m.mu.Lock()
		for ip, entry := range m.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(m.limiters, ip)
			}
		}
		m.mu.Unlock()
	}
}
