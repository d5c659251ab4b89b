package handler

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// ContextHandler 续写上下文处理器
type ContextHandler struct {
	builder *memory.ContextBuilder
}

// NewContextHandler 创建续写上下文处理器
func NewContextHandler(builder *memory.ContextBuilder) *ContextHandler {
	return &ContextHandler{builder: builder}
}

// Build 组装续写上下文
// @Summary 组装续写上下文
// @Description 拼接前文摘要、重要事件、伏笔提醒与角色状态；query 非空且召回开启时附加相关前文
// @Tags Context
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "待写章节序"
// @Param maxChapters query int false "摘要最多章数"
// @Param query query string false "召回查询"
// @Success 200 {object} dto.Response[memory.GenerationContext]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/context [get]
func (h *ContextHandler) Build(c *gin.Context) {
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	maxChapters, ok := queryIntDefault(c, "maxChapters", 0)
	if !ok {
		return
	}
	out, err := h.builder.BuildGeneration(c.Request.Context(), dto.BindBookID(c), order, maxChapters, c.Query("query"))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, out)
}
