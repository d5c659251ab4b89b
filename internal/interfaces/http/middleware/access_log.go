package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"novel-memory-api/pkg/logger"
)

// AccessLogConfig 访问日志配置
type AccessLogConfig struct {
	Enabled bool
	// SkipPaths 不记录的路径，通常为探活与指标端点
	SkipPaths []string
	// SlowThreshold 超过该耗时的请求以 warn 级别记录，0 表示不区分
	SlowThreshold time.Duration
}

// DefaultAccessLogSkipPaths 默认跳过的路径
var DefaultAccessLogSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// AccessLog 访问日志中间件，按路由模板记录并附带书籍与章节 ID
func AccessLog(cfg AccessLogConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
			"request_id", c.GetString("request_id"),
			"body_size", c.Writer.Size(),
		}
		if bid := c.Param("bid"); bid != "" {
			fields = append(fields, "book_id", bid)
		}
		if cid := c.Param("cid"); cid != "" {
			fields = append(fields, "chapter_id", cid)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		ctx := c.Request.Context()
		switch {
		case c.Writer.Status() >= 500:
			logger.Warn(ctx, "api request failed", fields...)
		case cfg.SlowThreshold > 0 && duration >= cfg.SlowThreshold:
			logger.Warn(ctx, "slow api request", fields...)
		default:
			logger.Info(ctx, "api request", fields...)
		}
	}
}
