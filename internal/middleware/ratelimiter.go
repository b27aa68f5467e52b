package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/TsutomuTakai/pp-case-api/internal/config"
)

// Quota is a fixed-window request budget per client address
type Quota struct {
	Requests int64
	Window   time.Duration
}

// RateLimiter counts requests per route+client using Redis
type RateLimiter interface {
	// Allow reports whether the client is within the quota for the route
	Allow(ctx context.Context, route, clientIP string, quota Quota) (bool, error)

	// Close closes the Redis connection
	Close() error
}

type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRateLimiter creates a new Redis-based rate limiter
func NewRateLimiter(cfg *config.Config, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       int(cfg.RedisDatabase),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("❌ [RateLimiter] Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ [RateLimiter] Connected to Redis",
		"host", cfg.RedisHost,
		"port", cfg.RedisPort,
	)

	return &redisRateLimiter{
		client: client,
		logger: logger,
	}, nil
}

// rateKey generates the Redis key for a route+client counter
// Format: rate:{route}:{clientIP}
func rateKey(route, clientIP string) string {
	return fmt.Sprintf("rate:%s:%s", route, clientIP)
}

func (r *redisRateLimiter) Allow(ctx context.Context, route, clientIP string, quota Quota) (bool, error) {
	key := rateKey(route, clientIP)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.logger.Error("❌ [RateLimiter] Failed to increment counter", "route", route, "error", err)
		// On error, allow the request but log it
		return true, err
	}

	// First hit opens the window
	if count == 1 {
		if err := r.client.Expire(ctx, key, quota.Window).Err(); err != nil {
			r.logger.Error("❌ [RateLimiter] Failed to set window TTL", "route", route, "error", err)
		}
	}

	return count <= quota.Requests, nil
}

func (r *redisRateLimiter) Close() error {
	return r.client.Close()
}

// NoOpRateLimiter is a rate limiter that always allows requests
// Used when Redis is not available
type NoOpRateLimiter struct {
	logger *slog.Logger
}

// NewNoOpRateLimiter creates a no-op rate limiter
func NewNoOpRateLimiter(logger *slog.Logger) RateLimiter {
	logger.Warn("⚠️ [RateLimiter] Using no-op rate limiter - rate limiting is disabled")
	return &NoOpRateLimiter{logger: logger}
}

func (r *NoOpRateLimiter) Allow(ctx context.Context, route, clientIP string, quota Quota) (bool, error) {
	return true, nil
}

func (r *NoOpRateLimiter) Close() error {
	return nil
}

// RateLimit rejects requests over the route's quota with 429 before any
// other processing happens.
func RateLimit(limiter RateLimiter, logger *slog.Logger, route string, quota Quota) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, _ := limiter.Allow(c.Request.Context(), route, c.ClientIP(), quota)
		if !allowed {
			logger.Warn("⚠️ [RateLimiter] Quota exceeded",
				"route", route,
				"client_ip", c.ClientIP(),
				"limit", quota.Requests,
				"window", quota.Window,
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}
