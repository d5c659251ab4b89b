package review

import (
	"context"
	"strings"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/workflow/chain"
	wfmodel "novel-memory-api/internal/workflow/model"
	wfnode "novel-memory-api/internal/workflow/node"
)

// aiDefaultConfidence 模型未给出置信度时使用
const aiDefaultConfidence = 0.70

// aiRule 交给模型判断的规则；instruction 描述检查要求，contextFn 选取参考资料
type aiRule struct {
	ruleMeta
	instruction string
	contextFn   func(rc *memory.ReviewContext) string
	chain       *chain.ReviewChain
	provider    string
	maxChars    int
}

func (r *aiRule) Check(ctx context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if !rc.Chapter.HasContent() {
		return nil, nil
	}
	content := wfnode.TruncateByRunes(rc.Chapter.Content, r.maxChars)
	findings, err := r.chain.Run(ctx, &wfmodel.ReviewRuleInput{
		Provider:     r.provider,
		RuleName:     r.Name(),
		RuleTitle:    r.title,
		Instruction:  r.instruction,
		ChapterOrder: rc.Chapter.OrderNum,
		ChapterTitle: rc.Chapter.Title,
		Content:      content,
		ContextBlock: r.contextFn(rc),
	})
	if err != nil {
		return nil, err
	}

	issues := make([]*entity.ReviewIssue, 0, len(findings))
	for _, f := range findings {
		if strings.TrimSpace(f.Title) == "" && strings.TrimSpace(f.Description) == "" {
			continue
		}
		issues = append(issues, r.toIssue(rc, f))
	}
	return issues, nil
}

// toIssue 原文片段能在正文中定位时记录偏移，否则以角色名或标题作为去重锚点
func (r *aiRule) toIssue(rc *memory.ReviewContext, f wfmodel.ReviewFinding) *entity.ReviewIssue {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		title = r.title
	}
	confidence := aiDefaultConfidence
	if f.Confidence != nil {
		confidence = min(max(*f.Confidence, 0), 1)
	}
	issue := r.newIssue(rc, title, strings.TrimSpace(f.Description), confidence)
	issue.Suggestion = strings.TrimSpace(f.Suggestion)

	excerpt := strings.TrimSpace(f.Excerpt)
	name := strings.TrimSpace(f.CharacterName)
	if c := rc.Index.ByName(name); c != nil {
		name = c.Name
	}
	if excerpt == "" && name == "" {
		return issue
	}
	loc := &entity.IssueLocation{OriginalText: clip(excerpt, 200), CharacterName: name}
	if excerpt != "" {
		if i := strings.Index(rc.Chapter.Content, excerpt); i >= 0 {
			start := wfnode.RuneOffset(rc.Chapter.Content, i)
			loc.StartOffset = entity.IntPtr(start)
			loc.EndOffset = entity.IntPtr(start + len([]rune(excerpt)))
			loc.Paragraph = entity.IntPtr(strings.Count(rc.Chapter.Content[:i], "\n"))
		}
	}
	issue.Location = loc
	return issue
}

func settingsContext(rc *memory.ReviewContext) string {
	return wfnode.BuildSettingsBlock(rc.Settings)
}

func profilesContext(rc *memory.ReviewContext) string {
	return wfnode.BuildCharacterProfiles(rc.Characters)
}

func abilityContext(rc *memory.ReviewContext) string {
	var power []*entity.WorldSetting
	for _, s := range rc.Settings {
		if s.Category == entity.SettingCategoryPowerSystem {
			power = append(power, s)
		}
	}
	return joinContext(
		wfnode.BuildCharacterProfiles(rc.Characters),
		memory.FormatCharacterStates(rc.StateChanges, rc.Index),
		wfnode.BuildSettingsBlock(power),
	)
}

func itemContext(rc *memory.ReviewContext) string {
	var items []*entity.WorldSetting
	for _, s := range rc.Settings {
		if s.Category == entity.SettingCategoryItem {
			items = append(items, s)
		}
	}
	return joinContext(wfnode.BuildSettingsBlock(items), "【前文时间线】\n"+rc.Timeline())
}

func recentContext(n int) func(rc *memory.ReviewContext) string {
	return func(rc *memory.ReviewContext) string {
		return rc.RecentSummaries(n)
	}
}

func emotionContext(rc *memory.ReviewContext) string {
	return joinContext(rc.RecentSummaries(2), memory.FormatCharacterStates(rc.StateChanges, rc.Index))
}

func rosterContext(rc *memory.ReviewContext) string {
	return "【角色名册】\n" + wfnode.BuildCharacterRoster(rc.Characters)
}

func joinContext(blocks ...string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" && b != "【前文时间线】" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}

// aiRuleSpec AI 规则目录
type aiRuleSpec struct {
	meta        ruleMeta
	instruction string
	contextFn   func(rc *memory.ReviewContext) string
}

var aiRuleSpecs = []aiRuleSpec{
	{
		meta:        ruleMeta{typ: entity.ReviewTypeSettingConflict, title: "设定冲突检测", description: "检测正文与世界观设定相矛盾的描写", priority: 40, ai: true},
		instruction: "对照世界观设定，找出正文中违背力量体系、地理、组织或世界规则的描写。",
		contextFn:   settingsContext,
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypePersonalityDeviation, title: "性格偏离检测", description: "检测角色言行明显偏离其性格设定", priority: 45, ai: true},
		instruction: "对照角色性格设定，找出角色言行明显偏离设定且缺乏铺垫的地方，给出相关角色名。",
		contextFn:   profilesContext,
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypeAbilityExceeded, title: "能力越界检测", description: "检测角色使用超出既有能力上限的手段", priority: 50, ai: true},
		instruction: "对照角色能力设定与当前境界，找出角色使用了超出其能力上限、且没有合理解释的手段。",
		contextFn:   abilityContext,
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypeItemAnomaly, title: "物品异常检测", description: "检测物品凭空出现、消失或归属错乱", priority: 55, ai: true},
		instruction: "结合物品设定与前文时间线，找出物品凭空出现、已损毁或遗失的物品再次出现、物品归属错乱等问题。",
		contextFn:   itemContext,
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypeCausalityDoubt, title: "因果存疑检测", description: "检测缺乏因果铺垫的情节转折", priority: 65, ai: true},
		instruction: "结合前文摘要，找出缺乏动机或铺垫、因果关系难以成立的情节转折。",
		contextFn:   recentContext(5),
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypePacingIssue, title: "节奏问题检测", description: "检测拖沓或过于仓促的叙事节奏", priority: 70, ai: true},
		instruction: "找出叙事明显拖沓、重复，或关键情节一笔带过过于仓促的段落。",
		contextFn:   recentContext(3),
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypeEmotionAbrupt, title: "情绪突变检测", description: "检测缺乏过渡的角色情绪转变", priority: 75, ai: true},
		instruction: "找出角色情绪在没有触发事件或过渡描写的情况下突然转变的地方，给出相关角色名。",
		contextFn:   emotionContext,
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypeViewpointDrift, title: "视角漂移检测", description: "检测叙事视角在段落内无提示地切换", priority: 80, ai: true},
		instruction: "找出叙事视角在同一场景内无提示地切换，或限知视角下写出了视角人物不可能知道的信息。",
		contextFn:   rosterContext,
	},
	{
		meta:        ruleMeta{typ: entity.ReviewTypeStyleInconsistency, title: "文风不一致检测", description: "检测与前文明显不一致的语言风格", priority: 85, ai: true},
		instruction: "结合前文摘要的整体基调，找出用词、语体或叙述口吻与全书风格明显不一致的段落。",
		contextFn:   recentContext(1),
	},
}

// NewAIRules 创建全部 AI 辅助规则；reviewChain 为 nil 时返回空
func NewAIRules(reviewChain *chain.ReviewChain, provider string, maxChars int) []Rule {
	if reviewChain == nil {
		return nil
	}
	if maxChars <= 0 {
		maxChars = 3000
	}
	rules := make([]Rule, 0, len(aiRuleSpecs))
	for _, spec := range aiRuleSpecs {
		rules = append(rules, &aiRule{
			ruleMeta:    spec.meta,
			instruction: spec.instruction,
			contextFn:   spec.contextFn,
			chain:       reviewChain,
			provider:    provider,
			maxChars:    maxChars,
		})
	}
	return rules
}

// NewDeterministicRules 创建全部确定性规则
func NewDeterministicRules() []Rule {
	return []Rule{
		newDeathRule(),
		newNameRule(),
		newPowerRule(),
		newForeshadowRule(),
		newLocationRule(),
		newTimelineRule(),
	}
}

// DefaultRules 完整规则目录，按优先级排序
func DefaultRules(reviewChain *chain.ReviewChain, provider string, maxChars int) []Rule {
	rules := append(NewDeterministicRules(), NewAIRules(reviewChain, provider, maxChars)...)
	SortRules(rules)
	return rules
}
