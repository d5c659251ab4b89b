// Package dto 定义 HTTP 请求与响应结构，以及统一的 {code, message, data} 信封
package dto

import (
	"net/http"

	"novel-memory-api/internal/domain/repository"
	"novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Response 成功信封；Code 与 HTTP 状态码一致
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetail 业务错误码，如 3004 摘要不存在、4001 非法状态流转
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误信封
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func write[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:    status,
		Message: message,
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString("trace_id"),
	})
}

func Success[T any](c *gin.Context, data T) {
	write(c, http.StatusOK, "success", data, nil)
}

// SuccessWithPage 列表数据放在 data，分页信息放在 meta
func SuccessWithPage[T, E any](c *gin.Context, data T, page *repository.PagedResult[E]) {
	var meta *PageMeta
	if page != nil {
		meta = &PageMeta{
			Page:       page.Page,
			PageSize:   page.PageSize,
			Total:      int(page.Total),
			TotalPages: page.TotalPages,
		}
	}
	write(c, http.StatusOK, "success", data, meta)
}

func Created[T any](c *gin.Context, data T) {
	write(c, http.StatusCreated, "created", data, nil)
}

// Accepted 异步任务已受理，data 中返回任务或查询入口
func Accepted[T any](c *gin.Context, data T) {
	write(c, http.StatusAccepted, "accepted", data, nil)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// AbortWithError 写错误信封并中止后续处理
func AbortWithError(c *gin.Context, appErr *errors.AppError) {
	detail := &ErrorDetail{ErrorCode: string(appErr.Code)}
	if appErr.Code != errors.CodeUnknown {
		detail.Details = appErr.Detail
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{
		Code:    appErr.HTTPStatus,
		Message: appErr.Message,
		Error:   detail,
		TraceID: c.GetString("trace_id"),
	})
}

// HandleError 把服务层错误写为错误信封。
// 非 AppError 一律按 500 处理，内部信息只进日志不进响应。
func HandleError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err,
			"route", c.FullPath(),
			"error_code", string(appErr.Code),
		)
	}
	AbortWithError(c, appErr)
}
