package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/utils"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 30 * time.Minute

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per browsing session, falling back to the client IP
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*sessionLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
	logger    *logrus.Logger
}

// NewRateLimiter allows `requests` per `window` with the given burst
func NewRateLimiter(requests int, window time.Duration, burst int, logger *logrus.Logger) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters:  make(map[string]*sessionLimiter),
		limit:     rate.Every(window / time.Duration(requests)),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
		logger:    logger,
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > limiterIdleTTL {
		for k, l := range r.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(r.limiters, k)
			}
		}
		r.lastSweep = now
	}

	l, exists := r.limiters[key]
	if !exists {
		l = &sessionLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = l
	}
	l.lastSeen = now
	return l.limiter
}

// Middleware returns the gin handler. Use after SessionMiddleware.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetRequestScope(c).SessionID
		if key == "" {
			key = "ip:" + utils.GetRealIP(c)
		}

		if !r.getLimiter(key).AllowN(r.now(), 1) {
			r.logger.WithFields(logrus.Fields{
				"key":  key,
				"path": c.Request.URL.Path,
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests. Please try again later.",
				"code":    "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
