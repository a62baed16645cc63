package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"sonopix/config"
	"sonopix/logging"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-client rate limiting for HTTP requests
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.RWMutex
	config   *config.Config
	logger   *logging.Logger
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter middleware
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		config:   cfg,
		logger:   logging.GetLogger(),
		now:      time.Now,
	}
}

// getLimiter returns or creates a rate limiter for a specific client
func (rl *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	now := rl.now()

	rl.mu.RLock()
	entry, exists := rl.limiters[clientIP]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		entry.lastSeen = now
		rl.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Check again in case another goroutine created it
	if entry, exists := rl.limiters[clientIP]; exists {
		entry.lastSeen = now
		return entry.limiter
	}

	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst

	// Convert requests per minute to requests per second
	ratePerSec := float64(requestsPerMin) / 60.0

	limiter := rate.NewLimiter(rate.Limit(ratePerSec), burst)
	rl.limiters[clientIP] = &clientLimiter{limiter: limiter, lastSeen: now}

	return limiter
}

// Handler returns a gin middleware that rejects requests over the client's
// budget with 429 and a Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Security.RateLimiting.Enabled {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		limiter := rl.getLimiter(clientIP)

		reservation := limiter.Reserve()
		if !reservation.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		delay := reservation.Delay()
		if delay > 0 {
			// Cancel the reservation since we're rejecting the request
			reservation.Cancel()

			nextCallTime := time.Now().Add(delay)
			rl.logger.Warn(
				"Rate limit exceeded for client %s. Next call allowed at %s (in %v)",
				clientIP,
				nextCallTime.Format("15:04:05"),
				delay.Round(time.Second),
			)

			retryAfter := int(delay.Round(time.Second) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": FormatRateLimitError(delay)})
			return
		}

		c.Next()
	}
}

// PrintRateLimitInfo logs the current rate limit configuration
func (rl *RateLimiter) PrintRateLimitInfo(serviceName string) {
	if !rl.config.Security.RateLimiting.Enabled {
		rl.logger.Startup("Rate limiting: DISABLED")
		return
	}

	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst

	rl.logger.Startup(
		"Rate limiting: ENABLED - %d requests/min (burst: %d) for %s",
		requestsPerMin,
		burst,
		serviceName,
	)

	if requestsPerMin > 0 {
		avgTimeBetween := time.Minute / time.Duration(requestsPerMin)
		rl.logger.Startup("Average time between allowed requests: %v", avgTimeBetween.Round(time.Second))
	}
}

// Cleanup drops limiters for clients not seen within maxAge and returns how
// many were removed.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	cutoff := rl.now().Add(-maxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// GetCurrentLimit returns the current rate limit configuration
func (rl *RateLimiter) GetCurrentLimit() (requestsPerMin int, burst int, enabled bool) {
	return rl.config.Security.RateLimiting.RequestsPerMin,
		rl.config.Security.RateLimiting.Burst,
		rl.config.Security.RateLimiting.Enabled
}

// FormatRateLimitError creates a user-friendly error message for rate limit exceeded
func FormatRateLimitError(delay time.Duration) string {
	nextCallTime := time.Now().Add(delay)
	return fmt.Sprintf(
		"Rate limit exceeded. Please try again in %v (at %s)",
		delay.Round(time.Second),
		nextCallTime.Format("15:04:05 MST"),
	)
}
