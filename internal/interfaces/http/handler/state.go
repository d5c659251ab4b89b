package handler

import (
	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// StateHandler 角色状态处理器
type StateHandler struct {
	states *memory.CharacterStateService
}

// NewStateHandler 创建角色状态处理器
func NewStateHandler(states *memory.CharacterStateService) *StateHandler {
	return &StateHandler{states: states}
}

// ListByCharacter 获取角色状态变更
// @Summary 获取角色状态变更
// @Tags CharacterStates
// @Produce json
// @Param charId path string true "角色 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.CharacterStateChange]]
// @Router /v1/characters/{charId}/state-changes [get]
func (h *StateHandler) ListByCharacter(c *gin.Context) {
	items, err := h.states.ListByCharacter(c.Request.Context(), dto.BindCharacterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListByBook 获取全书状态变更
// @Summary 获取全书状态变更
// @Tags CharacterStates
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.CharacterStateChange]]
// @Router /v1/books/{bid}/state-changes [get]
func (h *StateHandler) ListByBook(c *gin.Context) {
	items, err := h.states.ListByBook(c.Request.Context(), dto.BindBookID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// ListByChapter 获取章节状态变更
// @Summary 获取章节状态变更
// @Tags CharacterStates
// @Produce json
// @Param cid path string true "章节 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[entity.CharacterStateChange]]
// @Router /v1/chapters/{cid}/state-changes [get]
func (h *StateHandler) ListByChapter(c *gin.Context) {
	items, err := h.states.ListByChapter(c.Request.Context(), dto.BindChapterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(items))
}

// State 获取角色状态快照
// @Summary 获取角色状态快照
// @Description 指定 chapterOrder 时折叠到该章为止，否则返回最新状态
// @Tags CharacterStates
// @Produce json
// @Param charId path string true "角色 ID"
// @Param chapterOrder query int false "章节序"
// @Success 200 {object} dto.Response[dto.CharacterStateResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/characters/{charId}/state [get]
func (h *StateHandler) State(c *gin.Context) {
	ctx := c.Request.Context()
	characterID := dto.BindCharacterID(c)

	if c.Query("chapterOrder") == "" {
		state, err := h.states.Latest(ctx, characterID)
		if err != nil {
			dto.HandleError(c, err)
			return
		}
		dto.Success(c, &dto.CharacterStateResponse{CharacterState: state, Latest: true})
		return
	}

	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	state, err := h.states.StateAt(ctx, characterID, order)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.CharacterStateResponse{CharacterState: state})
}

// History 按章节分组的状态历史
// @Summary 按章节分组的状态历史
// @Tags CharacterStates
// @Produce json
// @Param charId path string true "角色 ID"
// @Success 200 {object} dto.Response[dto.ListResponse[memory.ChapterStateChanges]]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/characters/{charId}/state/history [get]
func (h *StateHandler) History(c *gin.Context) {
	groups, err := h.states.HistoryByChapter(c.Request.Context(), dto.BindCharacterID(c))
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, dto.NewListResponse(groups))
}

// Record 记录状态变更
// @Summary 记录状态变更
// @Description old_value 为空时从该角色此前的状态补齐
// @Tags CharacterStates
// @Accept json
// @Produce json
// @Param body body dto.RecordStateChangeRequest true "状态变更"
// @Success 201 {object} dto.Response[entity.CharacterStateChange]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/state-changes [post]
func (h *StateHandler) Record(c *gin.Context) {
	var req dto.RecordStateChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	change, err := h.states.Record(c.Request.Context(), req.ToInput())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Created(c, change)
}

// BatchRecord 批量记录状态变更
// @Summary 批量记录状态变更
// @Tags CharacterStates
// @Accept json
// @Produce json
// @Param body body dto.BatchRecordStateChangeRequest true "状态变更列表"
// @Success 201 {object} dto.Response[dto.ListResponse[entity.CharacterStateChange]]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/state-changes/batch [post]
func (h *StateHandler) BatchRecord(c *gin.Context) {
	var req dto.BatchRecordStateChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	items, err := h.states.BatchRecord(c.Request.Context(), req.ToInputs())
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Created(c, dto.NewListResponse(items))
}

// BuildContext 生成角色当前状态上下文
// @Summary 生成角色当前状态上下文
// @Tags CharacterStates
// @Produce json
// @Param bid path string true "书籍 ID"
// @Param chapterOrder query int true "当前章节序"
// @Success 200 {object} dto.Response[dto.ContextResponse]
// @Router /v1/books/{bid}/state-changes/context [get]
func (h *StateHandler) BuildContext(c *gin.Context) {
	bookID := dto.BindBookID(c)
	order, ok := queryInt(c, "chapterOrder")
	if !ok {
		return
	}
	text, err := h.states.BuildContext(c.Request.Context(), bookID, order)
	if err != nil {
		dto.HandleError(c, err)
		return
	}
	dto.Success(c, &dto.ContextResponse{BookID: bookID, ChapterOrder: order, Context: text})
}
