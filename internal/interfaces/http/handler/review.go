package handler

import (
	"novel-memory-api/internal/application/review"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	"novel-memory-api/internal/interfaces/http/dto"
	apperrors "novel-memory-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ReviewHandler 一致性审核处理器
type ReviewHandler struct {
	engine   *review.Engine
	issues   *review.IssueService
	realtime *review.RealtimeService
}

// NewReviewHandler 创建审核处理器
func NewReviewHandler(engine *review.Engine, issues *review.IssueService, realtime *review.RealtimeService) *ReviewHandler {
	return &ReviewHandler{engine: engine, issues: issues, realtime: realtime}
}

// bindLevels 合并查询参数与请求体中的 levels
func bindLevels(c *gin.Context) ([]entity.ReviewLevel, bool) {
	values := dto.QueryList(c, "levels")
	if c.Request.ContentLength != 0 {
		var req dto.ReviewChapterRequest
		if !bindJSON(c, &req) {
			return nil, false
		}
		values = append(values, req.Levels...)
	}
	return parseLevels(c, values)
}

// ListRules 审核规则目录
// @Summary 审核规则目录
// @Tags Review
// @Produce json
// @Success 200 {object} dto.Response[dto.ListResponse[review.RuleInfo]]
// @Router /v1/review/rules [get]
func (h *ReviewHandler) ListRules(c *gin.Context) {
	dto.Success(c, dto.NewListResponse(h.engine.Rules()))
}

// ReviewChapter 审核单章
// @Summary 审核单章
// @Tags Review
// @Accept json
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param cid path string true "章节 ID"
// @Param levels query string false "级别过滤，如 A,B"
// @Param body body dto.ReviewChapterRequest false "级别过滤"
// @Success 200 {object} dto.Response[entity.ReviewReport]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/review/chapters/{cid} [post]
func (h *ReviewHandler) ReviewChapter(c *gin.Context) {
	levels, ok := bindLevels(c)
	if !ok {
		return
	}
	report, err := h.engine.ReviewChapter(c.Request.Context(), dto.BindBookID(c), dto.BindChapterID(c), levels)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, report)
}

// QuickReview 快速审核单章
// @Summary 快速审核单章
// @Description 只执行 A 级确定性规则
// @Tags Review
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[entity.ReviewReport]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/review/quick/{cid} [post]
func (h *ReviewHandler) QuickReview(c *gin.Context) {
	report, err := h.engine.QuickReview(c.Request.Context(), dto.BindBookID(c), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, report)
}

// ReviewBatch 批量审核指定章节
// @Summary 批量审核指定章节
// @Tags Review
// @Accept json
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param body body dto.ReviewBatchRequest true "章节列表"
// @Success 200 {object} dto.Response[entity.ReviewReport]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/review/batch [post]
func (h *ReviewHandler) ReviewBatch(c *gin.Context) {
	var req dto.ReviewBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	levels, ok := parseLevels(c, req.Levels)
	if !ok {
		return
	}
	report, err := h.engine.ReviewBatch(c.Request.Context(), dto.BindBookID(c), req.ChapterIDs, levels)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, report)
}

// ReviewBook 审核全书
// @Summary 审核全书
// @Description 按章节序逐章审核，单章失败记录日志后继续
// @Tags Review
// @Accept json
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param levels query string false "级别过滤，如 A,B"
// @Success 200 {object} dto.Response[entity.ReviewReport]
// @Router /v1/books/{bid}/review [post]
func (h *ReviewHandler) ReviewBook(c *gin.Context) {
	levels, ok := bindLevels(c)
	if !ok {
		return
	}
	report, err := h.engine.ReviewBook(c.Request.Context(), dto.BindBookID(c), levels)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, report)
}

// ListIssues 书籍问题列表
// @Summary 书籍问题列表
// @Tags Review
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterId query string false "章节 ID"
// @Param level query string false "级别 (A-D 或 error/warning/suggestion/info)"
// @Param type query string false "问题类型"
// @Param status query string false "状态 (open, fixed, ignored)"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[[]entity.ReviewIssue]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/review/issues [get]
func (h *ReviewHandler) ListIssues(c *gin.Context) {
	page := dto.BindPage(c)
	filter := &repository.IssueFilter{
		ChapterID: c.Query("chapterId"),
		Type:      entity.ReviewType(c.Query("type")),
		Status:    entity.IssueStatus(c.Query("status")),
	}
	if raw := c.Query("level"); raw != "" {
		level, err := entity.ParseReviewLevel(raw)
		if err != nil {
			dto.HandleError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
			return
		}
		filter.Level = level
	}

	result, err := h.issues.ListByBook(c.Request.Context(), dto.BindBookID(c), filter, page)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	items := result.Items
	if items == nil {
		items = []*entity.ReviewIssue{}
	}
	dto.SuccessWithPage(c, items, result)
}

// ListChapterIssues 章节问题列表
// @Summary 章节问题列表
// @Tags Review
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.ReviewIssue]]
// @Router /v1/chapters/{cid}/review/issues [get]
func (h *ReviewHandler) ListChapterIssues(c *gin.Context) {
	items, err := h.issues.ListByChapter(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// GetIssue 问题详情
// @Summary 问题详情
// @Tags Review
// @Produce json
// @Param id path string true "问题 ID"
// @Success 200 {object} dto.Response[entity.ReviewIssue]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/review/issues/{id} [get]
func (h *ReviewHandler) GetIssue(c *gin.Context) {
	issue, err := h.issues.Get(c.Request.Context(), dto.BindID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, issue)
}

// UpdateIssueStatus 更新问题状态
// @Summary 更新问题状态
// @Description open 可迁移到 fixed 或 ignored，终态不可再变更
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "问题 ID"
// @Param body body dto.UpdateIssueStatusRequest true "目标状态"
// @Success 200 {object} dto.Response[entity.ReviewIssue]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/review/issues/{id}/status [put]
func (h *ReviewHandler) UpdateIssueStatus(c *gin.Context) {
	var req dto.UpdateIssueStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	issue, err := h.issues.UpdateStatus(c.Request.Context(), dto.BindID(c), entity.IssueStatus(req.Status))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, issue)
}

// BatchUpdateIssueStatus 批量更新问题状态
// @Summary 批量更新问题状态
// @Description 任一问题不存在或迁移非法时整体不生效
// @Tags Review
// @Accept json
// @Produce json
// @Param body body dto.BatchUpdateIssueStatusRequest true "问题与目标状态"
// @Success 200 {object} dto.Response[dto.BatchUpdateIssueStatusResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/review/issues/status [put]
func (h *ReviewHandler) BatchUpdateIssueStatus(c *gin.Context) {
	var req dto.BatchUpdateIssueStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	n, err := h.issues.BatchUpdateStatus(c.Request.Context(), req.IDs, entity.IssueStatus(req.Status))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.BatchUpdateIssueStatusResponse{Updated: n})
}

// DeleteIssue 删除问题
// @Summary 删除问题
// @Tags Review
// @Param id path string true "问题 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/review/issues/{id} [delete]
func (h *ReviewHandler) DeleteIssue(c *gin.Context) {
	if err := h.issues.Delete(c.Request.Context(), dto.BindID(c)); err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.NoContent(c)
}

// ClearIssues 清空书籍问题
// @Summary 清空书籍问题
// @Tags Review
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ClearIssuesResponse]
// @Router /v1/books/{bid}/review/issues [delete]
func (h *ReviewHandler) ClearIssues(c *gin.Context) {
	n, err := h.issues.Clear(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.ClearIssuesResponse{Deleted: n})
}

// IssueStats 问题统计
// @Summary 问题统计
// @Tags Review
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[repository.IssueStats]
// @Router /v1/books/{bid}/review/issues/stats [get]
func (h *ReviewHandler) IssueStats(c *gin.Context) {
	stats, err := h.issues.Stats(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, stats)
}

// ListReports 书籍审核报告列表
// @Summary 书籍审核报告列表
// @Tags Review
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param limit query int false "条数" default(20)
// @Success 200 {object} dto.Response[dto.ListResponse[dto.ReviewReportSummary]]
// @Router /v1/books/{bid}/review/reports [get]
func (h *ReviewHandler) ListReports(c *gin.Context) {
	limit, ok := queryIntDefault(c, "limit", 0)
	if !ok {
		return
	}
	reports, err := h.issues.ListReports(c.Request.Context(), dto.BindBookID(c), limit)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(dto.ToReviewReportSummaries(reports)))
}

// GetReport 审核报告详情
// @Summary 审核报告详情
// @Tags Review
// @Produce json
// @Param id path string true "报告 ID"
// @Success 200 {object} dto.Response[entity.ReviewReport]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/review/reports/{id} [get]
func (h *ReviewHandler) GetReport(c *gin.Context) {
	report, err := h.issues.GetReport(c.Request.Context(), dto.BindID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, report)
}

// TriggerRealtime 保存章节时触发实时审核
// @Summary 保存章节时触发实时审核
// @Description 同一章节在防抖窗口内只调度一次，审核结果写入缓存
// @Tags Review
// @Accept json
// @Produce json
// @Param body body dto.RealtimeReviewRequest true "书籍与章节"
// @Success 202 {object} dto.Response[dto.RealtimeReviewResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/review/realtime [post]
func (h *ReviewHandler) TriggerRealtime(c *gin.Context) {
	var req dto.RealtimeReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	scheduled, err := h.realtime.Trigger(c.Request.Context(), req.BookID, req.ChapterID)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Accepted(c, &dto.RealtimeReviewResponse{ChapterID: req.ChapterID, Scheduled: scheduled})
}

// LatestRealtime 最近一次实时审核报告
// @Summary 最近一次实时审核报告
// @Tags Review
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[entity.ReviewReport]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/review/realtime/{cid} [get]
func (h *ReviewHandler) LatestRealtime(c *gin.Context) {
	report, err := h.realtime.Latest(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, report)
}
