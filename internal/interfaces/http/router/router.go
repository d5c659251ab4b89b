// Package router 提供 HTTP 路由配置
package router

import (
	"time"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/interfaces/http/handler"
	"novel-memory-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 模型调用路由通常耗时数十秒，超过该阈值才视为慢请求
const slowRequestThreshold = 60 * time.Second

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	health   *handler.HealthHandler
	handlers *Handlers
	aiLimit  gin.HandlerFunc
}

// New 创建新的路由器；aiLimit 为 nil 时不对模型调用路由限流
func New(cfg *config.Config, health *handler.HealthHandler, handlers *Handlers, aiLimit gin.HandlerFunc) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if aiLimit == nil {
		aiLimit = func(c *gin.Context) { c.Next() }
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		health:   health,
		handlers: handlers,
		aiLimit:  aiLimit,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.AccessLog(middleware.AccessLogConfig{
		Enabled:       true,
		SkipPaths:     middleware.DefaultAccessLogSkipPaths,
		SlowThreshold: slowRequestThreshold,
	}))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	if r.health != nil {
		r.engine.GET("/health", r.health.Health)
		r.engine.GET("/ready", r.health.Ready)
		r.engine.GET("/live", r.health.Live)
	}

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	if r.handlers != nil {
		RegisterV1Routes(r.engine.Group("/v1"), r.handlers, r.aiLimit)
	}
}
