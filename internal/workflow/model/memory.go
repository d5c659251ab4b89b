package model

// ChapterInput 抽取流程的章节输入
type ChapterInput struct {
	Provider            string
	ChapterOrder        int
	ChapterTitle        string
	Content             string
	CharacterRoster     string
	ExistingForeshadows string
}

// SummaryDraft 模型给出的章节摘要
type SummaryDraft struct {
	Summary            string   `json:"summary" jsonschema:"description=200字以内的章节摘要"`
	KeyEvents          []string `json:"keyEvents"`
	CharactersAppeared []string `json:"charactersAppeared"`
	EmotionalTone      string   `json:"emotionalTone"`
}

// EventDraft 模型给出的事件
type EventDraft struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	EventType          string   `json:"eventType" jsonschema:"enum=major,enum=minor,enum=background"`
	InvolvedCharacters []string `json:"involvedCharacters"`
	Location           string   `json:"location"`
	Impact             string   `json:"impact"`
}

// EventsOutput 事件列表输出
type EventsOutput struct {
	Events []EventDraft `json:"events"`
}

// StateChangeDraft 模型给出的角色状态变化
type StateChangeDraft struct {
	CharacterName string `json:"characterName"`
	Field         string `json:"field"`
	OldValue      string `json:"oldValue"`
	NewValue      string `json:"newValue"`
	Reason        string `json:"reason"`
}

// StateChangesOutput 状态变化列表输出
type StateChangesOutput struct {
	Changes []StateChangeDraft `json:"changes"`
}

// ForeshadowDraft 模型识别出的伏笔
// keyChapters 与 chapters 两种字段名都接受
type ForeshadowDraft struct {
	Title             string   `json:"title"`
	Type              string   `json:"type"`
	Importance        string   `json:"importance"`
	PlantedText       string   `json:"plantedText"`
	ExpectedResolve   string   `json:"expectedResolve"`
	RelatedCharacters []string `json:"relatedCharacters"`
	Confidence        *float64 `json:"confidence"`
	KeyChapters       []int    `json:"keyChapters"`
	Chapters          []int    `json:"chapters,omitempty"`
}

// ExpectedChapters keyChapters 非空时优先，否则取 chapters
func (d *ForeshadowDraft) ExpectedChapters() []int {
	if len(d.KeyChapters) > 0 {
		return d.KeyChapters
	}
	return d.Chapters
}

// ForeshadowsOutput 伏笔列表输出
type ForeshadowsOutput struct {
	Foreshadows []ForeshadowDraft `json:"foreshadows"`
}
