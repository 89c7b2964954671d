package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window (e.g., 1 minute)
	BlockTime   time.Duration // How long an IP stays blocked after exceeding the limit
}

// RateLimiter provides IP-based fixed-window rate limiting using Redis
type RateLimiter struct {
	redis  *redis.Client
	scope  string
	config RateLimiterConfig
}

// NewRateLimiter creates a limiter whose counters live under scope, so login and
// registration are limited independently.
func NewRateLimiter(redisClient *redis.Client, scope string, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		scope:  scope,
		config: config,
	}
}

// Middleware returns a Gin middleware function for rate limiting. Redis failures let the
// request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, retryAfter, err := rl.CheckLimit(c.Request.Context(), clientIP)
		if err != nil {
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("scope", rl.scope),
				zap.String("ip", clientIP),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Seconds())
			logger.Log.Warn("Rate limit exceeded",
				zap.String("scope", rl.scope),
				zap.String("ip", clientIP),
				zap.Int("retry_after", seconds),
			)
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"code":        "RATE_LIMITED",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// CheckLimit counts the request against ip's window.
// Returns: (allowed bool, retryAfter duration, error)
func (rl *RateLimiter) CheckLimit(ctx context.Context, ip string) (bool, time.Duration, error) {
	key := rl.key(ip)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}

	// Set expiry on first request (count = 1)
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count > int64(rl.config.MaxRequests) {
		// First rejection in a window extends the key to the block period
		if count == int64(rl.config.MaxRequests)+1 && rl.config.BlockTime > rl.config.Window {
			if err := rl.redis.Expire(ctx, key, rl.config.BlockTime).Err(); err != nil {
				return false, 0, err
			}
		}
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = rl.config.Window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

func (rl *RateLimiter) key(ip string) string {
	return fmt.Sprintf("ratelimit:%s:%s", rl.scope, ip)
}
