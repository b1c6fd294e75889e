package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"characterchat/backend/pkg/errors"
	"characterchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
	// Skip exempts requests from limiting, e.g. long-lived websockets
	Skip func(*gin.Context) bool
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client key.
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultRateLimiterOptions().KeyFunc
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	return &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  log,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.options.Skip != nil && r.options.Skip(c) {
			c.Next()
			return
		}

		key := r.options.KeyFunc(c)
		if !r.getLimiter(key).Allow() {
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Run evicts idle clients every interval until ctx is done.
func (r *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.evict(now)
		}
	}
}

func (r *RateLimiter) evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, v := range r.clients {
		if now.Sub(v.lastSeen) > r.options.ExpiryDuration {
			delete(r.clients, k)
			removed++
		}
	}
	return removed
}
