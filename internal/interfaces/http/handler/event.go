package handler

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// EventHandler 剧情事件处理器
type EventHandler struct {
	events *memory.EventService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(events *memory.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// ListByBook 获取全书事件
// @Summary 获取全书事件
// @Description 按章节序与时间线排序
// @Tags Events
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.StoryEvent]]
// @Router /v1/books/{bid}/events [get]
func (h *EventHandler) ListByBook(c *gin.Context) {
	items, err := h.events.ListByBook(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListMajor 获取重大事件
// @Summary 获取重大事件
// @Tags Events
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.StoryEvent]]
// @Router /v1/books/{bid}/events/major [get]
func (h *EventHandler) ListMajor(c *gin.Context) {
	items, err := h.events.ListMajor(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListBefore 获取指定章节之前的事件
// @Summary 获取指定章节之前的事件
// @Tags Events
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "章节序"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.StoryEvent]]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/books/{bid}/events/before [get]
func (h *EventHandler) ListBefore(c *gin.Context) {
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	items, err := h.events.ListBeforeChapter(c.Request.Context(), dto.BindBookID(c), order)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListByCharacter 获取角色参与的事件
// @Summary 获取角色参与的事件
// @Tags Events
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param charId path string true "角色 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.StoryEvent]]
// @Router /v1/books/{bid}/characters/{charId}/events [get]
func (h *EventHandler) ListByCharacter(c *gin.Context) {
	items, err := h.events.ListByCharacter(c.Request.Context(), dto.BindBookID(c), dto.BindCharacterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListByChapter 获取章节事件
// @Summary 获取章节事件
// @Tags Events
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.StoryEvent]]
// @Router /v1/chapters/{cid}/events [get]
func (h *EventHandler) ListByChapter(c *gin.Context) {
	items, err := h.events.ListByChapter(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// Get 获取事件详情
// @Summary 获取事件详情
// @Tags Events
// @Produce json
// @Param id path string true "事件 ID"
// @Success 200 {object} dto.Response[entity.StoryEvent]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), dto.BindID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, event)
}

// Create 创建事件
// @Summary 创建事件
// @Description 未指定时间线序号时追加到全书末尾
// @Tags Events
// @Accept json
// @Produce json
// @Param body body dto.CreateEventRequest true "事件信息"
// @Success 201 {object} dto.Response[entity.StoryEvent]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.events.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Created(c, event)
}

// BatchCreate 批量创建事件
// @Summary 批量创建事件
// @Tags Events
// @Accept json
// @Produce json
// @Param body body dto.BatchCreateEventRequest true "事件列表"
// @Success 201 {object} dto.Response[dto.ListResponse[entity.StoryEvent]]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/events/batch [post]
func (h *EventHandler) BatchCreate(c *gin.Context) {
	var req dto.BatchCreateEventRequest
	if !bindJSON(c, &req) {
		return
	}
	items, err := h.events.CreateBatch(c.Request.Context(), req.ToInputs())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Created(c, dto.NewListResponse(items))
}

// Update 更新事件
// @Summary 更新事件
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "事件 ID"
// @Param body body dto.CreateEventRequest true "事件信息"
// @Success 200 {object} dto.Response[entity.StoryEvent]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.CreateEventRequest
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.events.Update(c.Request.Context(), dto.BindID(c), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, event)
}

// Delete 删除事件
// @Summary 删除事件
// @Tags Events
// @Param id path string true "事件 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.events.Delete(c.Request.Context(), dto.BindID(c)); err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.NoContent(c)
}

// BuildContext 生成重要事件回顾
// @Summary 生成重要事件回顾
// @Tags Events
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "当前章节序"
// @Success 200 {object} dto.Response[dto.ContextResponse]
// @Router /v1/books/{bid}/events/context [get]
func (h *EventHandler) BuildContext(c *gin.Context) {
	bookID := dto.BindBookID(c)
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	text, err := h.events.BuildContext(c.Request.Context(), bookID, order)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.ContextResponse{BookID: bookID, ChapterOrder: order, Context: text})
}
