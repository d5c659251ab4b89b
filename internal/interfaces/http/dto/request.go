package dto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"novel-memory-api/internal/domain/repository"
)

// BindPage 读取 page 与 page_size，非法或缺省值按默认分页处理
func BindPage(c *gin.Context) repository.Pagination {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return repository.NewPagination(page, pageSize)
}

// BindBookID 从 URI 绑定书籍 ID
func BindBookID(c *gin.Context) string {
	return c.Param("bid")
}

// BindChapterID 从 URI 绑定章节 ID
func BindChapterID(c *gin.Context) string {
	return c.Param("cid")
}

// BindCharacterID 从 URI 绑定角色 ID
func BindCharacterID(c *gin.Context) string {
	return c.Param("charId")
}

// BindID 从 URI 绑定资源 ID
func BindID(c *gin.Context) string {
	return c.Param("id")
}

// QueryInt 读取必填整数查询参数
func QueryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, fmt.Errorf("query parameter %s is required", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer", key)
	}
	return v, nil
}

// QueryIntDefault 读取可选整数查询参数，非法值返回错误而不是静默回退
func QueryIntDefault(c *gin.Context, key string, defaultVal int) (int, error) {
	if strings.TrimSpace(c.Query(key)) == "" {
		return defaultVal, nil
	}
	return QueryInt(c, key)
}

// QueryList 读取逗号分隔或重复出现的查询参数
func QueryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
