// Package handler 提供 HTTP 请求处理器
package handler

import (
	"novel-memory-api/internal/application/review"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/interfaces/http/dto"
	apperrors "novel-memory-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// bindJSON 绑定请求体，失败时直接写 400
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.HandleError(c, apperrors.ErrInvalidParam.WithDetail("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// queryInt 读取必填整数查询参数，失败时直接写 400
func queryInt(c *gin.Context, key string) (int, bool) {
	v, err := dto.QueryInt(c, key)
	if err != nil {
		dto.HandleError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return 0, false
	}
	return v, true
}

// queryIntDefault 读取可选整数查询参数
func queryIntDefault(c *gin.Context, key string, defaultVal int) (int, bool) {
	v, err := dto.QueryIntDefault(c, key, defaultVal)
	if err != nil {
		dto.HandleError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return 0, false
	}
	return v, true
}

// parseLevels 解析审核级别，空输入表示全部级别
func parseLevels(c *gin.Context, values []string) ([]entity.ReviewLevel, bool) {
	levels, err := review.ParseLevels(values)
	if err != nil {
		dto.HandleError(c, err)
		return nil, false
	}
	return levels, true
}
