// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"time"

	redisinfra "novel-memory-api/internal/infrastructure/persistence/redis"
	"novel-memory-api/internal/interfaces/http/dto"
	"novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// RequestsPerSecond 每个客户端每条路由的每秒请求数
	RequestsPerSecond int
	// Burst 突发容量，窗口内允许的请求数为 RequestsPerSecond + Burst
	Burst int
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 限流中间件，按客户端 IP 与路由模板计数
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst < 0 {
		cfg.Burst = 0
	}
	limit := cfg.RequestsPerSecond + cfg.Burst

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, time.Second)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			metrics.HTTPRateLimited.WithLabelValues(route).Inc()
			dto.AbortWithError(c, errors.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

// NewRateLimitMiddleware 使用 Redis 滑动窗口创建限流中间件；client 为 nil 时不限流
func NewRateLimitMiddleware(cfg RateLimitConfig, client *redisinfra.Client) gin.HandlerFunc {
	if client == nil {
		return RateLimit(cfg, nil)
	}
	return RateLimit(cfg, redisinfra.NewRateLimiter(client))
}
