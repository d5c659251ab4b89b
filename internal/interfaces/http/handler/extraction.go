package handler

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/interfaces/http/dto"
	"novel-memory-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ExtractionHandler 记忆抽取处理器
type ExtractionHandler struct {
	extraction *memory.ExtractionService
}

// NewExtractionHandler 创建记忆抽取处理器
func NewExtractionHandler(extraction *memory.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extraction: extraction}
}

// Extract 同步抽取章节记忆
// @Summary 同步抽取章节记忆
// @Description 生成摘要、事件与角色状态变化；部分阶段失败时 success=false 并返回已完成部分
// @Tags Extraction
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[memory.ExtractionResult]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/extract [post]
func (h *ExtractionHandler) Extract(c *gin.Context) {
	ctx := c.Request.Context()
	result, err := h.extraction.ExtractChapter(ctx, dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	if !result.Success {
		logger.Warn(ctx, "chapter extraction degraded",
			"chapter_id", result.ChapterID,
			"message", result.Message,
			"degraded", result.Degraded,
		)
	}
	dto.Success(c, result)
}

// ExtractAsync 异步抽取章节记忆
// @Summary 异步抽取章节记忆
// @Tags Extraction
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/chapters/{cid}/extract/async [post]
func (h *ExtractionHandler) ExtractAsync(c *gin.Context) {
	job, err := h.extraction.ExtractChapterAsync(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Accepted(c, dto.ToJobResponse(job))
}

// ExtractBook 异步抽取全书记忆
// @Summary 异步抽取全书记忆
// @Description 按章节序逐章处理，单章失败不终止任务
// @Tags Extraction
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Router /v1/books/{bid}/extraction/book [post]
func (h *ExtractionHandler) ExtractBook(c *gin.Context) {
	job, err := h.extraction.ExtractBookAsync(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Accepted(c, dto.ToJobResponse(job))
}

// GetJob 查询抽取任务
// @Summary 查询抽取任务
// @Tags Extraction
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/extraction/jobs/{id} [get]
func (h *ExtractionHandler) GetJob(c *gin.Context) {
	job, err := h.extraction.GetJob(c.Request.Context(), dto.BindID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}

// CancelJob 取消抽取任务
// @Summary 取消抽取任务
// @Description 已写入的章节记忆保留；其他进程执行的整书任务在下一章写回进度时停止
// @Tags Extraction
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/extraction/jobs/{id}/cancel [post]
func (h *ExtractionHandler) CancelJob(c *gin.Context) {
	job, err := h.extraction.CancelJob(c.Request.Context(), dto.BindID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}

// ListJobs 书籍的抽取任务列表
// @Summary 书籍的抽取任务列表
// @Tags Extraction
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /v1/books/{bid}/extraction/jobs [get]
func (h *ExtractionHandler) ListJobs(c *gin.Context) {
	page := dto.BindPage(c)
	result, err := h.extraction.ListJobs(c.Request.Context(), dto.BindBookID(c), page)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToJobListResponse(result.Items), result)
}
