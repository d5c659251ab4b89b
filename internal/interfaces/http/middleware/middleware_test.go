package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/pkg/logger"
)

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
	limit   int
}

func (s *stubLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	s.limit = limit
	return s.allowed, s.err
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.POST("/v1/chapters/:cid/extract", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitKeysByRouteTemplate(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 2, Burst: 3}, limiter))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/chapters/ch-1/extract", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/chapters/ch-2/extract", nil).Code)

	require.Len(t, limiter.keys, 2)
	assert.Equal(t, limiter.keys[0], limiter.keys[1])
	assert.True(t, strings.HasSuffix(limiter.keys[0], ":/v1/chapters/:cid/extract"))
	assert.Equal(t, 5, limiter.limit)
}

func TestRateLimitRejects(t *testing.T) {
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true}, &stubLimiter{allowed: false}))

	w := serve(r, http.MethodPost, "/v1/chapters/ch-1/extract", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true}, &stubLimiter{err: errors.New("redis down")}))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/chapters/ch-1/extract", nil).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := &stubLimiter{}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: false}, limiter))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/chapters/ch-1/extract", nil).Code)
	assert.Empty(t, limiter.keys)

	r = newEngine(NewRateLimitMiddleware(RateLimitConfig{Enabled: true}, nil))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/chapters/ch-1/extract", nil).Code)
}

func TestRequestIDReplacesOversizedHeader(t *testing.T) {
	r := newEngine(RequestID())

	w := serve(r, http.MethodGet, "/health", map[string]string{RequestIDHeader: "req-1"})
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	long := strings.Repeat("x", maxRequestIDLen+1)
	w = serve(r, http.MethodGet, "/health", map[string]string{RequestIDHeader: long})
	got := w.Header().Get(RequestIDHeader)
	assert.NotEqual(t, long, got)
	assert.Len(t, got, 36)
}

func TestAccessLogSkipsHealthChecksAndTagsChapter(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "info", "json")
	t.Cleanup(func() { logger.InitWithWriter(&bytes.Buffer{}, "info", "json") })

	r := newEngine(AccessLog(AccessLogConfig{Enabled: true, SkipPaths: DefaultAccessLogSkipPaths}))

	serve(r, http.MethodGet, "/health", nil)
	assert.Empty(t, buf.String())

	serve(r, http.MethodPost, "/v1/chapters/ch-9/extract", nil)
	out := buf.String()
	assert.Contains(t, out, `"route":"/v1/chapters/:cid/extract"`)
	assert.Contains(t, out, `"chapter_id":"ch-9"`)
	assert.Contains(t, out, `"status":200`)
}
