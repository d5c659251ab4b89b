package handler

import (
	"io"
	"strings"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/interfaces/http/dto"
	"novel-memory-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SummaryHandler 章节摘要处理器
type SummaryHandler struct {
	summaries  *memory.SummaryService
	extraction *memory.ExtractionService
}

// NewSummaryHandler 创建章节摘要处理器
func NewSummaryHandler(summaries *memory.SummaryService, extraction *memory.ExtractionService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, extraction: extraction}
}

// GetByChapter 获取章节摘要
// @Summary 获取章节摘要
// @Tags Summaries
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[entity.ChapterSummary]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/summary [get]
func (h *SummaryHandler) GetByChapter(c *gin.Context) {
	summary, err := h.summaries.GetByChapter(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, summary)
}

// ListByBook 获取全书摘要
// @Summary 获取全书摘要
// @Description 按章节序升序返回
// @Tags Summaries
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.ChapterSummary]]
// @Router /v1/books/{bid}/summaries [get]
func (h *SummaryHandler) ListByBook(c *gin.Context) {
	items, err := h.summaries.ListByBook(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListBefore 获取指定章节之前的摘要
// @Summary 获取指定章节之前的摘要
// @Tags Summaries
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "章节序"
// @Param limit query int false "最多条数，0 表示不限"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.ChapterSummary]]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/summaries/before [get]
func (h *SummaryHandler) ListBefore(c *gin.Context) {
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	limit, ok := queryIntDefault(c, "limit", 0)
	if !ok {
		return
	}
	items, err := h.summaries.ListBeforeChapter(c.Request.Context(), dto.BindBookID(c), order, limit)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListRecent 获取最近 N 章摘要
// @Summary 获取最近 N 章摘要
// @Tags Summaries
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param limit query int false "条数"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.ChapterSummary]]
// @Router /v1/books/{bid}/summaries/recent [get]
func (h *SummaryHandler) ListRecent(c *gin.Context) {
	limit, ok := queryIntDefault(c, "limit", 0)
	if !ok {
		return
	}
	items, err := h.summaries.ListRecent(c.Request.Context(), dto.BindBookID(c), limit)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// BuildContext 生成前文摘要上下文
// @Summary 生成前文摘要上下文
// @Tags Summaries
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "当前章节序"
// @Param maxChapters query int false "最多章数"
// @Success 200 {object} dto.Response[dto.ContextResponse]
// @Router /v1/books/{bid}/summaries/context [get]
func (h *SummaryHandler) BuildContext(c *gin.Context) {
	bookID := dto.BindBookID(c)
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	maxChapters, ok := queryIntDefault(c, "maxChapters", 0)
	if !ok {
		return
	}
	text, err := h.summaries.BuildContext(c.Request.Context(), bookID, order, maxChapters)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.ContextResponse{BookID: bookID, ChapterOrder: order, Context: text})
}

// Upsert 新建或覆盖章节摘要
// @Summary 新建或覆盖章节摘要
// @Tags Summaries
// @Accept json
// @Produce json
// @Param body body dto.UpsertSummaryRequest true "摘要"
// @Success 200 {object} dto.Response[entity.ChapterSummary]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/summaries [post]
func (h *SummaryHandler) Upsert(c *gin.Context) {
	var req dto.UpsertSummaryRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.summaries.Upsert(c.Request.Context(), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, summary)
}

// Update 局部更新摘要
// @Summary 局部更新摘要
// @Tags Summaries
// @Accept json
// @Produce json
// @Param id path string true "摘要 ID"
// @Param body body dto.UpdateSummaryRequest true "更新字段"
// @Success 200 {object} dto.Response[entity.ChapterSummary]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/summaries/{id} [put]
func (h *SummaryHandler) Update(c *gin.Context) {
	var req dto.UpdateSummaryRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.summaries.Update(c.Request.Context(), dto.BindID(c), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, summary)
}

// Delete 删除摘要
// @Summary 删除摘要
// @Tags Summaries
// @Param id path string true "摘要 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/summaries/{id} [delete]
func (h *SummaryHandler) Delete(c *gin.Context) {
	if err := h.summaries.Delete(c.Request.Context(), dto.BindID(c)); err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.NoContent(c)
}

// Generate AI 生成章节摘要
// @Summary AI 生成章节摘要
// @Description 只调用摘要阶段并覆盖保存，不抽取事件与状态
// @Tags Summaries
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[entity.ChapterSummary]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/summary/generate [post]
func (h *SummaryHandler) Generate(c *gin.Context) {
	summary, err := h.extraction.GenerateSummary(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, summary)
}

// Stream 流式生成章节摘要
// @Summary 流式生成章节摘要
// @Description SSE 推送 content 与 reasoning 片段，结束时保存摘要并推送 result
// @Tags Summaries
// @Produce text/event-stream
// @Param cid path string true "章节 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/summary/stream [get]
func (h *SummaryHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	chapterID := dto.BindChapterID(c)

	stream, err := h.extraction.StreamSummary(ctx, chapterID)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	defer stream.Cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	var raw strings.Builder
	index := 0

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-stream.C:
			if !ok {
				return false
			}
			if chunk.Err != nil {
				logger.Warn(ctx, "summary stream failed", "chapter_id", chapterID, "error", chunk.Err.Error())
				c.SSEvent("error", gin.H{"message": chunk.Err.Error()})
				return false
			}
			if chunk.Done {
				h.finishStream(c, chapterID, raw.String())
				return false
			}
			if chunk.Reasoning != "" {
				c.SSEvent("reasoning", gin.H{"chunk": chunk.Reasoning, "index": index})
			}
			if chunk.Content != "" {
				raw.WriteString(chunk.Content)
				c.SSEvent("content", gin.H{"chunk": chunk.Content, "index": index})
			}
			index++
			return true

		case <-ctx.Done():
			return false
		}
	})
}

func (h *SummaryHandler) finishStream(c *gin.Context, chapterID, raw string) {
	summary, err := h.extraction.SaveStreamedSummary(c.Request.Context(), chapterID, raw)
	if err != nil {
		c.SSEvent("error", gin.H{"message": err.Error()})
		return
	}
	c.SSEvent("result", summary)
}
