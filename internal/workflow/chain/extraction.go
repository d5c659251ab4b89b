package chain

import (
	"context"
	"strings"

	wfmodel "novel-memory-api/internal/workflow/model"
	wfnode "novel-memory-api/internal/workflow/node"
	workflowport "novel-memory-api/internal/workflow/port"
	workflowprompt "novel-memory-api/internal/workflow/prompt"
)

// 抽取阶段名，同时作为指标与日志标签
const (
	StageSummary      = "summary"
	StageEvents       = "events"
	StageStateChanges = "state_changes"
	StageForeshadows  = "foreshadows"
)

var (
	summarySchema     schemaCache
	eventsSchema      schemaCache
	stateChangeSchema schemaCache
	foreshadowSchema  schemaCache
)

// ExtractionChain 章节记忆抽取的四次模型调用
type ExtractionChain struct {
	json *JSONChain
}

// NewExtractionChain 创建抽取调用链
func NewExtractionChain(factory workflowport.ChatModelFactory) *ExtractionChain {
	return &ExtractionChain{json: NewJSONChain(factory)}
}

func chapterVars(in *wfmodel.ChapterInput) map[string]any {
	return map[string]any{
		"chapter_order":        in.ChapterOrder,
		"chapter_title":        strings.TrimSpace(in.ChapterTitle),
		"chapter_content":      in.Content,
		"character_roster":     in.CharacterRoster,
		"existing_foreshadows": in.ExistingForeshadows,
	}
}

func (c *ExtractionChain) summaryRequest(in *wfmodel.ChapterInput) *jsonRequest {
	return &jsonRequest{
		Workflow:   "memory.summary",
		Provider:   in.Provider,
		Prompt:     workflowprompt.PromptSummaryV1,
		Vars:       chapterVars(in),
		SchemaName: "chapter_summary",
		Schema:     summarySchema.get(wfnode.GenerateSchema[wfmodel.SummaryDraft]),
	}
}

// Summary 生成章节摘要
func (c *ExtractionChain) Summary(ctx context.Context, in *wfmodel.ChapterInput) (*wfmodel.SummaryDraft, wfmodel.LLMUsageMeta, error) {
	raw, meta, err := c.json.generate(ctx, c.summaryRequest(in))
	if err != nil {
		return nil, meta, err
	}
	draft, err := ParseSummary(raw)
	return draft, meta, err
}

// StreamSummary 流式生成章节摘要，调用方读完后用 ParseSummary 解析
func (c *ExtractionChain) StreamSummary(ctx context.Context, in *wfmodel.ChapterInput) (*wfnode.Stream, error) {
	return c.json.stream(ctx, c.summaryRequest(in))
}

// ParseSummary 解析摘要输出
func ParseSummary(raw string) (*wfmodel.SummaryDraft, error) {
	var draft wfmodel.SummaryDraft
	if err := wfnode.DecodeJSON(raw, &draft); err != nil {
		return nil, &ParseError{Stage: StageSummary, Raw: raw, Err: err}
	}
	return &draft, nil
}

// Events 抽取章节事件
func (c *ExtractionChain) Events(ctx context.Context, in *wfmodel.ChapterInput) ([]wfmodel.EventDraft, wfmodel.LLMUsageMeta, error) {
	raw, meta, err := c.json.generate(ctx, &jsonRequest{
		Workflow:   "memory.events",
		Provider:   in.Provider,
		Prompt:     workflowprompt.PromptEventsV1,
		Vars:       chapterVars(in),
		SchemaName: "story_events",
		Schema:     eventsSchema.get(wfnode.GenerateSchema[wfmodel.EventsOutput]),
	})
	if err != nil {
		return nil, meta, err
	}
	items, err := wfnode.DecodeJSONList[wfmodel.EventDraft](raw, "events")
	if err != nil {
		return nil, meta, &ParseError{Stage: StageEvents, Raw: raw, Err: err}
	}
	return items, meta, nil
}

// StateChanges 抽取角色状态变化
func (c *ExtractionChain) StateChanges(ctx context.Context, in *wfmodel.ChapterInput) ([]wfmodel.StateChangeDraft, wfmodel.LLMUsageMeta, error) {
	raw, meta, err := c.json.generate(ctx, &jsonRequest{
		Workflow:   "memory.state_changes",
		Provider:   in.Provider,
		Prompt:     workflowprompt.PromptStateChangesV1,
		Vars:       chapterVars(in),
		SchemaName: "character_state_changes",
		Schema:     stateChangeSchema.get(wfnode.GenerateSchema[wfmodel.StateChangesOutput]),
	})
	if err != nil {
		return nil, meta, err
	}
	items, err := wfnode.DecodeJSONList[wfmodel.StateChangeDraft](raw, "changes")
	if err != nil {
		return nil, meta, &ParseError{Stage: StageStateChanges, Raw: raw, Err: err}
	}
	return items, meta, nil
}

// Foreshadows 识别本章新埋下的伏笔
func (c *ExtractionChain) Foreshadows(ctx context.Context, in *wfmodel.ChapterInput) ([]wfmodel.ForeshadowDraft, wfmodel.LLMUsageMeta, error) {
	raw, meta, err := c.json.generate(ctx, &jsonRequest{
		Workflow:   "memory.foreshadows",
		Provider:   in.Provider,
		Prompt:     workflowprompt.PromptForeshadowDetectV1,
		Vars:       chapterVars(in),
		SchemaName: "foreshadows",
		Schema:     foreshadowSchema.get(wfnode.GenerateSchema[wfmodel.ForeshadowsOutput]),
	})
	if err != nil {
		return nil, meta, err
	}
	items, err := wfnode.DecodeJSONList[wfmodel.ForeshadowDraft](raw, "foreshadows")
	if err != nil {
		return nil, meta, &ParseError{Stage: StageForeshadows, Raw: raw, Err: err}
	}
	return items, meta, nil
}
