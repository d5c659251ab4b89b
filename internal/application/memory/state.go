package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/tracer"
)

// StateChangeInput 记录一条角色状态变更；CharacterID 可以是 ID、本名或别名
type StateChangeInput struct {
	CharacterID string `json:"character_id"`
	ChapterID   string `json:"chapter_id"`
	Field       string `json:"field"`
	OldValue    string `json:"old_value"`
	NewValue    string `json:"new_value"`
	Reason      string `json:"reason"`
}

// ChapterStateChanges 单章内的状态变更
type ChapterStateChanges struct {
	ChapterOrder int                            `json:"chapter_order"`
	Changes      []*entity.CharacterStateChange `json:"changes"`
}

// CharacterStateService 角色状态追踪
type CharacterStateService struct {
	changes repository.StateChangeRepository
	story   repository.StoryRepository
	tx      repository.Transactor
}

// NewCharacterStateService 创建角色状态服务
func NewCharacterStateService(changes repository.StateChangeRepository, story repository.StoryRepository, tx repository.Transactor) *CharacterStateService {
	return &CharacterStateService{changes: changes, story: story, tx: tx}
}

func (s *CharacterStateService) requireCharacter(ctx context.Context, characterID string) (*entity.Character, error) {
	c, err := s.story.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, dbError(err, "failed to get character")
	}
	if c == nil {
		return nil, apperrors.ErrCharacterNotFound.WithDetail(characterID)
	}
	return c, nil
}

func (s *CharacterStateService) ListByCharacter(ctx context.Context, characterID string) ([]*entity.CharacterStateChange, error) {
	items, err := s.changes.ListByCharacter(ctx, characterID, nil)
	return items, dbError(err, "failed to list state changes")
}

func (s *CharacterStateService) ListByBook(ctx context.Context, bookID string) ([]*entity.CharacterStateChange, error) {
	items, err := s.changes.ListByBook(ctx, bookID)
	return items, dbError(err, "failed to list state changes")
}

func (s *CharacterStateService) ListByChapter(ctx context.Context, chapterID string) ([]*entity.CharacterStateChange, error) {
	items, err := s.changes.ListByChapter(ctx, chapterID)
	return items, dbError(err, "failed to list state changes")
}

// StateAt 折叠 chapter_order <= chapterOrder 的全部变更
func (s *CharacterStateService) StateAt(ctx context.Context, characterID string, chapterOrder int) (*entity.CharacterState, error) {
	return s.fold(ctx, characterID, &chapterOrder)
}

// Latest 折叠全部变更
func (s *CharacterStateService) Latest(ctx context.Context, characterID string) (*entity.CharacterState, error) {
	return s.fold(ctx, characterID, nil)
}

func (s *CharacterStateService) fold(ctx context.Context, characterID string, upTo *int) (*entity.CharacterState, error) {
	if _, err := s.requireCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	items, err := s.changes.ListByCharacter(ctx, characterID, upTo)
	if err != nil {
		return nil, dbError(err, "failed to list state changes")
	}
	return entity.FoldCharacterState(characterID, items, upTo), nil
}

// HistoryByChapter 按章节序升序分组的变更历史
func (s *CharacterStateService) HistoryByChapter(ctx context.Context, characterID string) ([]ChapterStateChanges, error) {
	if _, err := s.requireCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	items, err := s.changes.ListByCharacter(ctx, characterID, nil)
	if err != nil {
		return nil, dbError(err, "failed to list state changes")
	}
	orders, groups := entity.GroupStateChangesByChapter(items)
	out := make([]ChapterStateChanges, 0, len(orders))
	for _, order := range orders {
		out = append(out, ChapterStateChanges{ChapterOrder: order, Changes: groups[order]})
	}
	return out, nil
}

// Record 追加单条变更
func (s *CharacterStateService) Record(ctx context.Context, in *StateChangeInput) (*entity.CharacterStateChange, error) {
	items, err := s.BatchRecord(ctx, []*StateChangeInput{in})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// BatchRecord 批量追加；任一条无法解析角色或章节时整批拒绝
// old_value 为空时用该章节之前的折叠结果补全
func (s *CharacterStateService) BatchRecord(ctx context.Context, inputs []*StateChangeInput) ([]*entity.CharacterStateChange, error) {
	ctx, span := tracer.Start(ctx, "memory.CharacterStateService.BatchRecord")
	defer span.End()

	if len(inputs) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("changes must not be empty")
	}

	chapters := make(map[string]*entity.Chapter)
	indexes := make(map[string]*entity.CharacterIndex)
	changes := make([]*entity.CharacterStateChange, 0, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("changes[%d] is empty", i))
		}
		chapter := chapters[in.ChapterID]
		if chapter == nil {
			var err error
			if chapter, err = s.story.GetChapter(ctx, in.ChapterID); err != nil {
				return nil, dbError(err, "failed to get chapter")
			}
			if chapter == nil {
				return nil, apperrors.ErrChapterNotFound.WithDetail(in.ChapterID)
			}
			chapters[in.ChapterID] = chapter
		}
		idx, ok := indexes[chapter.BookID]
		if !ok {
			characters, err := s.story.ListCharacters(ctx, chapter.BookID)
			if err != nil {
				return nil, dbError(err, "failed to list characters")
			}
			idx = entity.NewCharacterIndex(characters)
			indexes[chapter.BookID] = idx
		}
		characterID := idx.Resolve(strings.TrimSpace(in.CharacterID))
		if characterID == "" {
			return nil, apperrors.ErrCharacterNotFound.WithDetail(in.CharacterID)
		}

		change := &entity.CharacterStateChange{
			CharacterID:  characterID,
			BookID:       chapter.BookID,
			ChapterID:    chapter.ID,
			ChapterOrder: chapter.OrderNum,
			Field:        strings.TrimSpace(in.Field),
			OldValue:     strings.TrimSpace(in.OldValue),
			NewValue:     strings.TrimSpace(in.NewValue),
			Reason:       strings.TrimSpace(in.Reason),
		}
		if err := change.Validate(); err != nil {
			return nil, invalidParam(fmt.Errorf("changes[%d]: %w", i, err))
		}
		changes = append(changes, change)
	}

	if err := s.fillOldValues(ctx, changes); err != nil {
		return nil, err
	}
	if err := s.changes.CreateBatch(ctx, changes); err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to record state changes")
	}
	return changes, nil
}

// fillOldValues 按角色读取一次历史，补全缺失的 old_value；同批次内的前序变更也计入
func (s *CharacterStateService) fillOldValues(ctx context.Context, changes []*entity.CharacterStateChange) error {
	history := make(map[string][]*entity.CharacterStateChange)
	loaded := make(map[string]bool)
	for _, c := range changes {
		if c.OldValue == "" {
			if !loaded[c.CharacterID] {
				stored, err := s.changes.ListByCharacter(ctx, c.CharacterID, nil)
				if err != nil {
					return dbError(err, "failed to list state changes")
				}
				history[c.CharacterID] = append(stored, history[c.CharacterID]...)
				loaded[c.CharacterID] = true
			}
			upTo := c.ChapterOrder
			if v, ok := entity.FoldCharacterState(c.CharacterID, history[c.CharacterID], &upTo).Get(c.Field); ok {
				c.OldValue = v
			}
		}
		history[c.CharacterID] = append(history[c.CharacterID], c)
	}
	return nil
}

// BuildContext chapterOrder 之前各角色的折叠状态文本块
func (s *CharacterStateService) BuildContext(ctx context.Context, bookID string, chapterOrder int) (string, error) {
	items, err := s.changes.ListBeforeChapter(ctx, bookID, chapterOrder)
	if err != nil {
		return "", dbError(err, "failed to list state changes")
	}
	if len(items) == 0 {
		return "", nil
	}
	characters, err := s.story.ListCharacters(ctx, bookID)
	if err != nil {
		return "", dbError(err, "failed to list characters")
	}
	return FormatCharacterStates(items, entity.NewCharacterIndex(characters)), nil
}

// FormatCharacterStates 角色当前状态文本块，角色按首次出现的章节排序，字段按名称排序
func FormatCharacterStates(changes []*entity.CharacterStateChange, idx *entity.CharacterIndex) string {
	ordered := append([]*entity.CharacterStateChange(nil), changes...)
	entity.SortStateChanges(ordered)

	var ids []string
	seen := make(map[string]struct{})
	for _, c := range ordered {
		if _, ok := seen[c.CharacterID]; ok {
			continue
		}
		seen[c.CharacterID] = struct{}{}
		ids = append(ids, c.CharacterID)
	}

	var sb strings.Builder
	for _, id := range ids {
		state := entity.FoldCharacterState(id, ordered, nil)
		if len(state.Fields) == 0 {
			continue
		}
		fields := make([]string, 0, len(state.Fields))
		for f := range state.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		if sb.Len() == 0 {
			sb.WriteString("【角色当前状态】\n")
		}
		name := id
		if idx != nil {
			name = idx.DisplayName(id)
		}
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f+"："+state.Fields[f])
		}
		fmt.Fprintf(&sb, "- %s：%s\n", name, strings.Join(parts, "，"))
	}
	return strings.TrimRight(sb.String(), "\n")
}
