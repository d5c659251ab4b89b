package review

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
	apperrors "novel-memory-api/pkg/errors"
)

const testBook = "book-1"

func kael() *entity.Character {
	return &entity.Character{ID: "kael", BookID: testBook, Name: "Kael", Aliases: []string{"凯尔"}}
}

func linFeng() *entity.Character {
	return &entity.Character{ID: "lin", BookID: testBook, Name: "林风", Aliases: []string{"小风"}}
}

func reviewContext(order int, content string, chars ...*entity.Character) *memory.ReviewContext {
	return &memory.ReviewContext{
		Chapter: &entity.Chapter{
			ID:       fmt.Sprintf("ch-%d", order),
			BookID:   testBook,
			Title:    fmt.Sprintf("第%d章", order),
			Content:  content,
			OrderNum: order,
		},
		Characters: chars,
		Index:      entity.NewCharacterIndex(chars),
	}
}

func stateChange(characterID string, order int, field, value string) *entity.CharacterStateChange {
	return &entity.CharacterStateChange{
		ID:           fmt.Sprintf("sc-%s-%d-%s", characterID, order, field),
		CharacterID:  characterID,
		BookID:       testBook,
		ChapterID:    fmt.Sprintf("ch-%d", order),
		ChapterOrder: order,
		Field:        field,
		NewValue:     value,
	}
}

func deathEvent(order int, impact string, involved ...string) *entity.StoryEvent {
	return &entity.StoryEvent{
		ID:                 fmt.Sprintf("ev-%d", order),
		BookID:             testBook,
		ChapterID:          fmt.Sprintf("ch-%d", order),
		ChapterOrder:       order,
		Title:              "断桥之战",
		EventType:          entity.EventTypeMajor,
		InvolvedCharacters: involved,
		Impact:             impact,
	}
}

func TestDeathRule(t *testing.T) {
	rule := newDeathRule()

	t.Run("dead character acts", func(t *testing.T) {
		rc := reviewContext(15, "夜色很深。\n凯尔说：“我们走吧。”", kael())
		rc.Events = []*entity.StoryEvent{deathEvent(12, "凯尔战死", "kael")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		require.Len(t, issues, 1)

		issue := issues[0]
		assert.Equal(t, entity.ReviewLevelError, issue.Level)
		assert.Equal(t, entity.ReviewTypeCharacterDeathConflict, issue.Type)
		assert.Equal(t, "角色生死冲突：Kael", issue.Title)
		require.NotNil(t, issue.Reference)
		assert.Equal(t, 12, *issue.Reference.ChapterOrder)
		assert.Equal(t, "ev-12", issue.Reference.EventID)
		require.NotNil(t, issue.Location)
		assert.Equal(t, 1, *issue.Location.Paragraph)
		assert.Equal(t, "Kael", issue.Location.CharacterName)
		assert.InDelta(t, deathConfidence, *issue.Confidence, 1e-9)
	})

	t.Run("flashback is ignored", func(t *testing.T) {
		rc := reviewContext(15, "他想起当年凯尔说过的话。", kael())
		rc.Events = []*entity.StoryEvent{deathEvent(12, "凯尔战死", "kael")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("revived character", func(t *testing.T) {
		rc := reviewContext(15, "凯尔说：“我回来了。”", kael())
		rc.Events = []*entity.StoryEvent{deathEvent(12, "凯尔战死", "kael")}
		rc.StateChanges = []*entity.CharacterStateChange{stateChange("kael", 13, entity.StateFieldIsAlive, "true")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("state change records death", func(t *testing.T) {
		rc := reviewContext(15, "凯尔走进大厅。", kael())
		rc.StateChanges = []*entity.CharacterStateChange{stateChange("kael", 9, entity.StateFieldIsAlive, "false")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, 9, *issues[0].Reference.ChapterOrder)
		assert.Empty(t, issues[0].Reference.EventID)
	})

	t.Run("death of another involved character", func(t *testing.T) {
		mira := &entity.Character{ID: "mira", BookID: testBook, Name: "米拉"}
		rc := reviewContext(15, "凯尔说：“走吧。”", kael(), mira)
		rc.Events = []*entity.StoryEvent{deathEvent(12, "米拉战死，凯尔负伤", "kael", "mira")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("reported once per character", func(t *testing.T) {
		rc := reviewContext(15, "凯尔说：“走吧。”\n凯尔笑了。\nKael走远了。", kael())
		rc.Events = []*entity.StoryEvent{deathEvent(12, "凯尔战死", "kael")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		assert.Len(t, issues, 1)
	})
}

func TestNameRule(t *testing.T) {
	rule := newNameRule()

	rc := reviewContext(3, "林风推开门。小风，你来了。", linFeng())
	issues, err := rule.Check(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, entity.ReviewLevelError, issues[0].Level)
	assert.Equal(t, "林风", issues[0].Location.CharacterName)
	assert.Contains(t, issues[0].Description, "林风、小风")

	far := "林风推开门。" + strings.Repeat("风声", 60) + "小风，你来了。"
	issues, err = rule.Check(context.Background(), reviewContext(3, far, linFeng()))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func powerContext(order int, content string) *memory.ReviewContext {
	rc := reviewContext(order, content, linFeng())
	rc.Settings = []*entity.WorldSetting{{
		ID: "ps", BookID: testBook, Category: entity.SettingCategoryPowerSystem, Name: "修炼境界", Content: "炼气→筑基→金丹→元婴",
	}}
	rc.StateChanges = []*entity.CharacterStateChange{stateChange("lin", 5, entity.StateFieldPower, "金丹")}
	return rc
}

func TestPowerRule(t *testing.T) {
	rule := newPowerRule()

	issues, err := rule.Check(context.Background(), powerContext(8, "林风不过是筑基修士，却硬撼强敌。"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Description, "「金丹」")
	assert.Contains(t, issues[0].Description, "「筑基」")
	assert.Equal(t, 5, *issues[0].Reference.ChapterOrder)

	issues, err = rule.Check(context.Background(), powerContext(8, "林风压制修为，装作筑基修士。"))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func locationContext(order int, content string) *memory.ReviewContext {
	rc := reviewContext(order, content, linFeng())
	rc.Settings = []*entity.WorldSetting{
		{ID: "l1", BookID: testBook, Category: entity.SettingCategoryLocation, Name: "青云山"},
		{ID: "l2", BookID: testBook, Category: entity.SettingCategoryGeography, Name: "落霞城"},
	}
	return rc
}

func TestLocationRule(t *testing.T) {
	rule := newLocationRule()

	t.Run("moved across chapters without travel", func(t *testing.T) {
		rc := locationContext(4, "林风站在落霞城头，望着远方。")
		rc.StateChanges = []*entity.CharacterStateChange{stateChange("lin", 3, entity.StateFieldLocation, "青云山")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "地点冲突：林风", issues[0].Title)
		assert.Equal(t, 3, *issues[0].Reference.ChapterOrder)
	})

	t.Run("travel is described", func(t *testing.T) {
		rc := locationContext(4, "林风来到落霞城，望着远方。")
		rc.StateChanges = []*entity.CharacterStateChange{stateChange("lin", 3, entity.StateFieldLocation, "青云山")}

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("two places at once", func(t *testing.T) {
		rc := locationContext(4, "林风在青云山练剑。\n与此同时，林风出现在落霞城。")

		issues, err := rule.Check(context.Background(), rc)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "地点冲突：林风不可能同时出现", issues[0].Title)
		assert.Equal(t, 10, *issues[0].Location.StartOffset)
		assert.Equal(t, 1, *issues[0].Location.Paragraph)
	})
}

func timelineContext(content string) *memory.ReviewContext {
	rc := reviewContext(8, content)
	rc.Events = []*entity.StoryEvent{
		{ID: "e1", BookID: testBook, ChapterID: "ch-3", ChapterOrder: 3, Title: "断桥之战", TimelineOrder: 1},
		{ID: "e2", BookID: testBook, ChapterID: "ch-5", ChapterOrder: 5, Title: "血月之夜", TimelineOrder: 2},
	}
	return rc
}

func TestTimelineRule(t *testing.T) {
	rule := newTimelineRule()

	issues, err := rule.Check(context.Background(), timelineContext("血月之夜之后，断桥之战才爆发。"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "时间线冲突：事件先后顺序错误", issues[0].Title)
	assert.Equal(t, "e2", issues[0].Reference.EventID)
	assert.Equal(t, 0, *issues[0].Location.StartOffset)

	issues, err = rule.Check(context.Background(), timelineContext("断桥之战之后，血月之夜降临。"))
	require.NoError(t, err)
	assert.Empty(t, issues)

	issues, err = rule.Check(context.Background(), timelineContext("众人都说，断桥之战即将打响。"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "时间线冲突：已发生事件被描述为未发生", issues[0].Title)
	assert.Equal(t, 5, *issues[0].Location.StartOffset)
	assert.Equal(t, 3, *issues[0].Reference.ChapterOrder)
}

func TestForeshadowRule(t *testing.T) {
	rule := newForeshadowRule()
	foreshadow := func(id string, importance entity.ForeshadowImportance, status entity.ForeshadowStatus, planted int) *entity.Foreshadow {
		return &entity.Foreshadow{ID: id, BookID: testBook, Title: id, Importance: importance, Status: status, PlantedChapter: planted}
	}

	tests := []struct {
		name    string
		f       *entity.Foreshadow
		chapter int
		want    entity.ReviewLevel
	}{
		{"major below remind", foreshadow("m1", entity.ForeshadowImportanceMajor, entity.ForeshadowStatusPlanted, 1), 15, ""},
		{"major remind", foreshadow("m2", entity.ForeshadowImportanceMajor, entity.ForeshadowStatusPlanted, 1), 16, entity.ReviewLevelSuggestion},
		{"major warn", foreshadow("m3", entity.ForeshadowImportanceMajor, entity.ForeshadowStatusPartial, 1), 31, entity.ReviewLevelWarning},
		{"minor remind", foreshadow("n1", entity.ForeshadowImportanceMinor, entity.ForeshadowStatusPlanted, 1), 31, entity.ReviewLevelSuggestion},
		{"minor warn", foreshadow("n2", entity.ForeshadowImportanceMinor, entity.ForeshadowStatusPlanted, 1), 51, entity.ReviewLevelWarning},
		{"subtle never", foreshadow("s1", entity.ForeshadowImportanceSubtle, entity.ForeshadowStatusPlanted, 1), 200, ""},
		{"resolved never", foreshadow("r1", entity.ForeshadowImportanceMajor, entity.ForeshadowStatusResolved, 1), 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := reviewContext(tt.chapter, "正文。")
			rc.Foreshadows = []*entity.Foreshadow{tt.f}

			issues, err := rule.Check(context.Background(), rc)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, tt.want, issues[0].Level)
			assert.Equal(t, tt.f.ID, issues[0].Reference.ForeshadowID)
			assert.Nil(t, issues[0].Location)
		})
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels([]string{"error,B", "warning", ""})
	require.NoError(t, err)
	assert.Equal(t, []entity.ReviewLevel{entity.ReviewLevelError, entity.ReviewLevelWarning}, levels)

	levels, err = ParseLevels(nil)
	require.NoError(t, err)
	assert.Empty(t, levels)

	_, err = ParseLevels([]string{"fatal"})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules(nil, "", 0)
	require.Len(t, rules, 6)
	for i := 1; i < len(rules); i++ {
		assert.Less(t, rules[i-1].Priority(), rules[i].Priority())
	}
	assert.Equal(t, string(entity.ReviewTypeCharacterDeathConflict), rules[0].Name())
	assert.Equal(t, string(entity.ReviewTypeTimelineConflict), rules[len(rules)-1].Name())
}
