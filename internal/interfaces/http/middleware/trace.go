package middleware

import (
	"net/http"

	"novel-memory-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Trace 为每个请求开启服务端 span；探活与指标端点不采样
func Trace(serviceName string) gin.HandlerFunc {
	skip := toSet(DefaultAccessLogSkipPaths)
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, ok := skip[r.URL.Path]
			return !ok
		}),
	)
}

// TraceContext 把 trace_id/span_id 写入 gin 与日志上下文，错误信封据此回填 trace_id。
// 路径中的书籍与章节 ID 会作为 span 属性，便于按书籍检索链路。
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if !sc.IsValid() {
			c.Next()
			return
		}

		traceID := sc.TraceID().String()
		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
		c.Request = c.Request.WithContext(ctx)

		if bookID := c.Param("bid"); bookID != "" {
			span.SetAttributes(attribute.String("novel.book_id", bookID))
		}
		if chapterID := c.Param("cid"); chapterID != "" {
			span.SetAttributes(attribute.String("novel.chapter_id", chapterID))
		}

		c.Next()
	}
}
