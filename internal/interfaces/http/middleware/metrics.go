package middleware

import (
	"strconv"
	"time"

	"novel-memory-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute 未命中路由的统一标签，避免原始路径撑爆指标基数
const unmatchedRoute = "unmatched"

// Metrics 按路由模板采集请求量、耗时与报文大小，探活与指标端点不计入
func Metrics() gin.HandlerFunc {
	skip := toSet(DefaultAccessLogSkipPaths)

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		inFlight := metrics.HTTPInFlight.WithLabelValues(route)
		inFlight.Inc()
		defer inFlight.Dec()

		if n := c.Request.ContentLength; n > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, route).Observe(float64(n))
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
