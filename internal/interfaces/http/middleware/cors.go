package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig 跨域配置；来源支持 https://*.example.com 形式的通配
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// 编辑器通过 SSE 拉取摘要流时会带 Last-Event-ID
var defaultCORSHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID", "Last-Event-ID"}

// CORS 跨域中间件。来源为 * 时关闭凭据，否则浏览器会拒绝响应
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.DefaultConfig()
	c.AllowWildcard = true
	c.ExposeHeaders = []string{RequestIDHeader, "X-Trace-ID"}
	c.MaxAge = 12 * time.Hour

	if len(cfg.AllowedMethods) > 0 {
		c.AllowMethods = cfg.AllowedMethods
	}
	c.AllowHeaders = defaultCORSHeaders
	if len(cfg.AllowedHeaders) > 0 {
		c.AllowHeaders = cfg.AllowedHeaders
	}

	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
		c.AllowCredentials = true
	}
	return cors.New(c)
}
