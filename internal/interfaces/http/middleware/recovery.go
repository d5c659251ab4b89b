// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"runtime/debug"

	"novel-memory-api/internal/interfaces/http/dto"
	"novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery 捕获 handler 中的 panic，记录堆栈并返回 500 错误信封。
// SSE 摘要流已开始输出时无法再写信封，只中断连接。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered", fmt.Errorf("%v", rec),
				"route", c.FullPath(),
				"method", c.Request.Method,
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			dto.AbortWithError(c, errors.ErrInternalError)
		}()
		c.Next()
	}
}
