// Package ratelimit provides rate limiting middleware for the admin core
// API. Requests are throttled per operator (X-Admin-Id) when the auth
// proxy identifies one, falling back to the client IP.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config tunes the limiter.
type Config struct {
	// RequestsPerMinute is the steady-state allowance per client.
	RequestsPerMinute int
	// BurstSize is how far a client may briefly run ahead of the rate.
	BurstSize int
	// CleanupInterval is how often idle client buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns the limits used when the server config sets none.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	}
}

// bucket is a token bucket for one client.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func (b *bucket) refill(now time.Time, perSecond, burst float64) {
	b.tokens += now.Sub(b.lastSeen).Seconds() * perSecond
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastSeen = now
}

// Limiter tracks per-client token buckets.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

// New creates a limiter and starts its idle-bucket sweeper.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop terminates the sweeper goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * l.cfg.CleanupInterval)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Allow reports whether a request from key fits inside its budget, and
// spends one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.cfg.BurstSize) - 1, lastSeen: now}
		return true
	}

	b.refill(now, float64(l.cfg.RequestsPerMinute)/60.0, float64(l.cfg.BurstSize))
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects over-budget requests with 429.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if admin := c.GetHeader("X-Admin-Id"); admin != "" {
			key = "admin:" + admin
		}

		if !l.Allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please slow down.",
			})
			return
		}

		c.Next()
	}
}
