package handler

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// ForeshadowHandler 伏笔处理器
type ForeshadowHandler struct {
	foreshadows *memory.ForeshadowService
}

// NewForeshadowHandler 创建伏笔处理器
func NewForeshadowHandler(foreshadows *memory.ForeshadowService) *ForeshadowHandler {
	return &ForeshadowHandler{foreshadows: foreshadows}
}

// List 获取伏笔列表
// @Summary 获取伏笔列表
// @Description 支持按状态、关联角色、埋设章节过滤，可组合使用
// @Tags Foreshadows
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param status query string false "状态 (planted, partial, resolved, abandoned)"
// @Param characterId query string false "关联角色 ID"
// @Param chapterId query string false "埋设章节 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.Foreshadow]]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/foreshadows [get]
func (h *ForeshadowHandler) List(c *gin.Context) {
	filter := memory.ForeshadowFilter{
		Status:      entity.ForeshadowStatus(c.Query("status")),
		CharacterID: c.Query("characterId"),
		ChapterID:   c.Query("chapterId"),
	}
	items, err := h.foreshadows.List(c.Request.Context(), dto.BindBookID(c), filter)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListUnresolved 获取未回收伏笔
// @Summary 获取未回收伏笔
// @Tags Foreshadows
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.Foreshadow]]
// @Router /v1/books/{bid}/foreshadows/unresolved [get]
func (h *ForeshadowHandler) ListUnresolved(c *gin.Context) {
	items, err := h.foreshadows.ListUnresolved(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListMajorUnresolved 获取未回收的重要伏笔
// @Summary 获取未回收的重要伏笔
// @Tags Foreshadows
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.Foreshadow]]
// @Router /v1/books/{bid}/foreshadows/major-unresolved [get]
func (h *ForeshadowHandler) ListMajorUnresolved(c *gin.Context) {
	items, err := h.foreshadows.ListMajorUnresolved(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// Stats 伏笔统计
// @Summary 伏笔统计
// @Tags Foreshadows
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[memory.ForeshadowStats]
// @Router /v1/books/{bid}/foreshadows/stats [get]
func (h *ForeshadowHandler) Stats(c *gin.Context) {
	stats, err := h.foreshadows.Stats(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, stats)
}

// Reminders 待回收提醒
// @Summary 待回收提醒
// @Description 埋设距今不少于 minChapters 章且未回收的伏笔，重要性优先
// @Tags Foreshadows
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param currentChapter query int true "当前章节序"
// @Param minChapters query int false "最少间隔章数"
// @Success 200 {object} dto.Response[dto.ForeshadowRemindersResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/foreshadows/reminders [get]
func (h *ForeshadowHandler) Reminders(c *gin.Context) {
	current, ok := queryInt(c, "currentChapter")
	if !ok {
		return
	}
	minChapters, ok := queryIntDefault(c, "minChapters", 0)
	if !ok {
		return
	}
	minChapters = h.foreshadows.ReminderThreshold(minChapters)
	items, err := h.foreshadows.Reminders(c.Request.Context(), dto.BindBookID(c), current, minChapters)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	if items == nil {
		items = []*entity.Foreshadow{}
	}
	dto.Success(c, &dto.ForeshadowRemindersResponse{
		CurrentChapter: current,
		MinChapters:    minChapters,
		Items:          items,
		Text:           memory.FormatReminders(items),
	})
}

// BuildContext 生成伏笔提醒上下文
// @Summary 生成伏笔提醒上下文
// @Tags Foreshadows
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "当前章节序"
// @Success 200 {object} dto.Response[dto.ContextResponse]
// @Router /v1/books/{bid}/foreshadows/context [get]
func (h *ForeshadowHandler) BuildContext(c *gin.Context) {
	bookID := dto.BindBookID(c)
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	text, err := h.foreshadows.BuildContext(c.Request.Context(), bookID, order)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.ContextResponse{BookID: bookID, ChapterOrder: order, Context: text})
}

// Get 获取伏笔详情
// @Summary 获取伏笔详情
// @Tags Foreshadows
// @Produce json
// @Param id path string true "伏笔 ID"
// @Success 200 {object} dto.Response[entity.Foreshadow]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id} [get]
func (h *ForeshadowHandler) Get(c *gin.Context) {
	f, err := h.foreshadows.Get(c.Request.Context(), dto.BindID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, f)
}

// Create 创建伏笔
// @Summary 创建伏笔
// @Description 默认状态 planted、重要性 minor、来源 manual
// @Tags Foreshadows
// @Accept json
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param body body dto.CreateForeshadowRequest true "伏笔信息"
// @Success 201 {object} dto.Response[entity.Foreshadow]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/foreshadows [post]
func (h *ForeshadowHandler) Create(c *gin.Context) {
	var req dto.CreateForeshadowRequest
	if !bindJSON(c, &req) {
		return
	}
	req.BookID = dto.BindBookID(c)
	f, err := h.foreshadows.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Created(c, f)
}

// Update 更新伏笔内容
// @Summary 更新伏笔内容
// @Description 不改变状态与回收章节
// @Tags Foreshadows
// @Accept json
// @Produce json
// @Param id path string true "伏笔 ID"
// @Param body body dto.CreateForeshadowRequest true "伏笔信息"
// @Success 200 {object} dto.Response[entity.Foreshadow]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id} [put]
func (h *ForeshadowHandler) Update(c *gin.Context) {
	var req dto.CreateForeshadowRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.foreshadows.Update(c.Request.Context(), dto.BindID(c), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, f)
}

// UpdateStatus 迁移伏笔状态
// @Summary 迁移伏笔状态
// @Tags Foreshadows
// @Accept json
// @Produce json
// @Param id path string true "伏笔 ID"
// @Param body body dto.UpdateForeshadowStatusRequest true "目标状态"
// @Success 200 {object} dto.Response[entity.Foreshadow]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id}/status [put]
func (h *ForeshadowHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateForeshadowStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.foreshadows.UpdateStatus(c.Request.Context(), dto.BindID(c), entity.ForeshadowStatus(req.Status), req.Notes)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, f)
}

// AddResolutionChapter 追加回收章节
// @Summary 追加回收章节
// @Description 重复章节忽略；planted 状态迁移到 partial
// @Tags Foreshadows
// @Accept json
// @Produce json
// @Param id path string true "伏笔 ID"
// @Param body body dto.AddResolutionChapterRequest true "章节序"
// @Success 200 {object} dto.Response[entity.Foreshadow]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id}/resolution-chapters [post]
func (h *ForeshadowHandler) AddResolutionChapter(c *gin.Context) {
	var req dto.AddResolutionChapterRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.foreshadows.AddResolutionChapter(c.Request.Context(), dto.BindID(c), *req.ChapterOrder)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, f)
}

// Resolve 回收伏笔
// @Summary 回收伏笔
// @Tags Foreshadows
// @Accept json
// @Produce json
// @Param id path string true "伏笔 ID"
// @Param body body dto.ResolveForeshadowRequest false "回收说明"
// @Success 200 {object} dto.Response[entity.Foreshadow]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id}/resolve [post]
func (h *ForeshadowHandler) Resolve(c *gin.Context) {
	var req dto.ResolveForeshadowRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	f, err := h.foreshadows.Resolve(c.Request.Context(), dto.BindID(c), req.Notes, req.ChapterOrder)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, f)
}

// Abandon 放弃伏笔
// @Summary 放弃伏笔
// @Tags Foreshadows
// @Accept json
// @Produce json
// @Param id path string true "伏笔 ID"
// @Param body body dto.AbandonForeshadowRequest false "放弃原因"
// @Success 200 {object} dto.Response[entity.Foreshadow]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id}/abandon [post]
func (h *ForeshadowHandler) Abandon(c *gin.Context) {
	var req dto.AbandonForeshadowRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	f, err := h.foreshadows.Abandon(c.Request.Context(), dto.BindID(c), req.Reason)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, f)
}

// Delete 删除伏笔
// @Summary 删除伏笔
// @Tags Foreshadows
// @Param id path string true "伏笔 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/foreshadows/{id} [delete]
func (h *ForeshadowHandler) Delete(c *gin.Context) {
	if err := h.foreshadows.Delete(c.Request.Context(), dto.BindID(c)); err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.NoContent(c)
}
