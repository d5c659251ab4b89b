package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
)

const testBook = "book-1"

type fixture struct {
	store       *memstore.Store
	story       *memstore.StoryRepository
	summaries   *memstore.SummaryRepository
	events      *memstore.EventRepository
	foreshadows *memstore.ForeshadowRepository
	changes     *memstore.StateChangeRepository
	jobs        *memstore.JobRepository
	tx          *memstore.TxManager
	cfg         config.MemoryConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.NewStore()
	return &fixture{
		store:       s,
		story:       memstore.NewStoryRepository(s),
		summaries:   memstore.NewSummaryRepository(s),
		events:      memstore.NewEventRepository(s),
		foreshadows: memstore.NewForeshadowRepository(s),
		changes:     memstore.NewStateChangeRepository(s),
		jobs:        memstore.NewJobRepository(s),
		tx:          memstore.NewTxManager(s),
		cfg: config.MemoryConfig{
			SummaryContextChapters: 10,
			ReminderMinChapters:    5,
			ExtractionMaxChars:     8000,
			DetectForeshadows:      true,
		},
	}
}

func chapterID(order int) string {
	return fmt.Sprintf("ch-%d", order)
}

// addChapters 写入第 1..n 章
func (f *fixture) addChapters(n int) {
	for i := 1; i <= n; i++ {
		f.store.PutChapter(&entity.Chapter{
			ID:       chapterID(i),
			BookID:   testBook,
			Title:    fmt.Sprintf("第%d章", i),
			Content:  fmt.Sprintf("第%d章的正文。", i),
			OrderNum: i,
		})
	}
}

func (f *fixture) addCharacter(id, name string, aliases ...string) {
	f.store.PutCharacter(&entity.Character{
		ID:      id,
		BookID:  testBook,
		Name:    name,
		Aliases: aliases,
		Type:    entity.CharacterTypeSupporting,
	})
}

func (f *fixture) foreshadowService() *ForeshadowService {
	return NewForeshadowService(f.foreshadows, f.story, f.cfg)
}

func (f *fixture) stateService() *CharacterStateService {
	return NewCharacterStateService(f.changes, f.story, f.tx)
}

// routedModel 按系统提示词判断抽取阶段并返回对应输出
type routedModel struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   map[string]int
}

func newRoutedModel(replies map[string]string) *routedModel {
	return &routedModel{replies: replies, errs: map[string]error{}, calls: map[string]int{}}
}

func stageOf(input []*schema.Message) string {
	if len(input) == 0 {
		return ""
	}
	system := input[0].Content
	switch {
	case strings.Contains(system, "情节分析师"):
		return "events"
	case strings.Contains(system, "设定管理员"):
		return "state_changes"
	case strings.Contains(system, "伏笔"):
		return "foreshadows"
	default:
		return "summary"
	}
}

func (m *routedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	stage := stageOf(input)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[stage]++
	if err := m.errs[stage]; err != nil {
		return nil, err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.replies[stage],
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20},
		},
	}, nil
}

func (m *routedModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stage := stageOf(input)
	m.mu.Lock()
	reply := m.replies[stage]
	m.mu.Unlock()
	runes := []rune(reply)
	half := len(runes) / 2
	return schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, Content: string(runes[:half])},
		{Role: schema.Assistant, Content: string(runes[half:])},
	}), nil
}

func (m *routedModel) failStage(stage string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[stage] = err
}

type modelFactory struct {
	model model.BaseChatModel
}

func (f *modelFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	return f.model, nil
}

// recordingQueue 只记录投递的任务，由测试手动执行
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*entity.ExtractionJob
}

func (q *recordingQueue) Enqueue(_ context.Context, job *entity.ExtractionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}
