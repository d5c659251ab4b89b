package chain

import (
	"context"
	"strings"

	wfmodel "novel-memory-api/internal/workflow/model"
	wfnode "novel-memory-api/internal/workflow/node"
	workflowport "novel-memory-api/internal/workflow/port"
	workflowprompt "novel-memory-api/internal/workflow/prompt"
)

// StageReview 审查调用的解析阶段名
const StageReview = "review"

var findingsSchema schemaCache

// ReviewChain AI 辅助审查规则的模型调用
type ReviewChain struct {
	json *JSONChain
}

// NewReviewChain 创建审查调用链
func NewReviewChain(factory workflowport.ChatModelFactory) *ReviewChain {
	return &ReviewChain{json: NewJSONChain(factory)}
}

// Run 执行一条规则，返回模型给出的发现
func (c *ReviewChain) Run(ctx context.Context, in *wfmodel.ReviewRuleInput) ([]wfmodel.ReviewFinding, error) {
	contextBlock := strings.TrimSpace(in.ContextBlock)
	if contextBlock == "" {
		contextBlock = "（无）"
	}
	raw, _, err := c.json.generate(ctx, &jsonRequest{
		Workflow: "review." + in.RuleName,
		Provider: in.Provider,
		Prompt:   workflowprompt.PromptReviewRuleV1,
		Vars: map[string]any{
			"rule_title":       in.RuleTitle,
			"rule_instruction": in.Instruction,
			"chapter_order":    in.ChapterOrder,
			"chapter_title":    strings.TrimSpace(in.ChapterTitle),
			"chapter_content":  in.Content,
			"context_block":    contextBlock,
		},
		SchemaName: "review_findings",
		Schema:     findingsSchema.get(wfnode.GenerateSchema[wfmodel.ReviewFindingsOutput]),
	})
	if err != nil {
		return nil, err
	}
	items, err := wfnode.DecodeJSONList[wfmodel.ReviewFinding](raw, "issues")
	if err != nil {
		return nil, &ParseError{Stage: StageReview, Raw: raw, Err: err}
	}
	return items, nil
}
