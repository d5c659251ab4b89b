package model

// ReviewRuleInput 单条 AI 审查规则的输入
type ReviewRuleInput struct {
	Provider     string
	RuleName     string
	RuleTitle    string
	Instruction  string
	ChapterOrder int
	ChapterTitle string
	Content      string
	ContextBlock string
}

// ReviewFinding 模型给出的一条审查发现
type ReviewFinding struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Excerpt       string   `json:"excerpt"`
	CharacterName string   `json:"characterName"`
	Suggestion    string   `json:"suggestion"`
	Confidence    *float64 `json:"confidence"`
}

// ReviewFindingsOutput 审查发现列表输出
type ReviewFindingsOutput struct {
	Issues []ReviewFinding `json:"issues"`
}
