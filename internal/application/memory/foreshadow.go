package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/entity"
	"novel-memory-api/internal/domain/repository"
	apperrors "novel-memory-api/pkg/errors"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/metrics"
	"novel-memory-api/pkg/tracer"
)

// DefaultReminderMinChapters 提醒阈值默认值
const DefaultReminderMinChapters = 5

// ForeshadowInput 创建或更新伏笔内容；状态只能通过状态迁移接口修改
type ForeshadowInput struct {
	BookID            string   `json:"book_id"`
	Title             string   `json:"title"`
	Type              string   `json:"type"`
	Importance        string   `json:"importance"`
	PlantedChapterID  string   `json:"planted_chapter_id"`
	PlantedChapter    *int     `json:"planted_chapter"`
	PlantedText       string   `json:"planted_text"`
	ExpectedResolve   string   `json:"expected_resolve"`
	RelatedCharacters []string `json:"related_characters"`
	Confidence        *float64 `json:"confidence"`
}

// ForeshadowFilter 列表过滤，全部为空时返回全书伏笔
type ForeshadowFilter struct {
	Status      entity.ForeshadowStatus
	CharacterID string
	ChapterID   string
}

// ForeshadowStats 伏笔统计
type ForeshadowStats struct {
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"by_status"`
	Open          int64            `json:"open"`
	Overdue       int64            `json:"overdue"`
	LatestChapter int              `json:"latest_chapter"`
}

// ForeshadowService 伏笔追踪
type ForeshadowService struct {
	foreshadows repository.ForeshadowRepository
	story       repository.StoryRepository
	minChapters int
}

// NewForeshadowService 创建伏笔服务
func NewForeshadowService(foreshadows repository.ForeshadowRepository, story repository.StoryRepository, cfg config.MemoryConfig) *ForeshadowService {
	n := cfg.ReminderMinChapters
	if n <= 0 {
		n = DefaultReminderMinChapters
	}
	return &ForeshadowService{foreshadows: foreshadows, story: story, minChapters: n}
}

func (s *ForeshadowService) Get(ctx context.Context, id string) (*entity.Foreshadow, error) {
	f, err := s.foreshadows.GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err, "failed to get foreshadow")
	}
	if f == nil {
		return nil, apperrors.ErrForeshadowNotFound
	}
	return f, nil
}

func (s *ForeshadowService) List(ctx context.Context, bookID string, filter ForeshadowFilter) ([]*entity.Foreshadow, error) {
	var (
		items []*entity.Foreshadow
		err   error
	)
	switch {
	case filter.ChapterID != "":
		items, err = s.foreshadows.ListByPlantedChapter(ctx, filter.ChapterID)
	case filter.CharacterID != "":
		items, err = s.foreshadows.ListByCharacter(ctx, bookID, filter.CharacterID)
	case filter.Status != "":
		if !filter.Status.Valid() {
			return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown foreshadow status %q", filter.Status))
		}
		items, err = s.foreshadows.ListByStatus(ctx, bookID, filter.Status)
	default:
		items, err = s.foreshadows.ListByBook(ctx, bookID)
	}
	if err != nil {
		return nil, dbError(err, "failed to list foreshadows")
	}
	// 多个条件同时给出时在内存中补充过滤
	out := items[:0]
	for _, f := range items {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.CharacterID != "" && !slices.Contains(f.RelatedCharacters, filter.CharacterID) {
			continue
		}
		if filter.ChapterID != "" && f.PlantedChapterID != filter.ChapterID {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// ListUnresolved planted 与 partial 状态的伏笔
func (s *ForeshadowService) ListUnresolved(ctx context.Context, bookID string) ([]*entity.Foreshadow, error) {
	items, err := s.foreshadows.ListByStatus(ctx, bookID, entity.ForeshadowStatusPlanted, entity.ForeshadowStatusPartial)
	return items, dbError(err, "failed to list unresolved foreshadows")
}

// ListMajorUnresolved 未回收的重要伏笔
func (s *ForeshadowService) ListMajorUnresolved(ctx context.Context, bookID string) ([]*entity.Foreshadow, error) {
	items, err := s.ListUnresolved(ctx, bookID)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, f := range items {
		if f.Importance == entity.ForeshadowImportanceMajor {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *ForeshadowService) Create(ctx context.Context, in *ForeshadowInput) (*entity.Foreshadow, error) {
	ctx, span := tracer.Start(ctx, "memory.ForeshadowService.Create")
	defer span.End()

	if in == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("body is required")
	}
	f := &entity.Foreshadow{BookID: strings.TrimSpace(in.BookID)}
	if err := s.applyInput(ctx, f, in); err != nil {
		return nil, err
	}
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, invalidParam(err)
	}
	if err := s.foreshadows.Create(ctx, f); err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to create foreshadow")
	}
	return f, nil
}

// applyInput 写入内容字段；planted_chapter_id 存在时埋设章节序以章节存储为准
func (s *ForeshadowService) applyInput(ctx context.Context, f *entity.Foreshadow, in *ForeshadowInput) error {
	if v := strings.TrimSpace(in.Title); v != "" {
		f.Title = v
	}
	if in.Type != "" {
		f.Type = entity.ForeshadowType(in.Type)
	}
	if in.Importance != "" {
		f.Importance = entity.ForeshadowImportance(in.Importance)
	}
	if in.PlantedChapterID != "" {
		chapter, err := s.story.GetChapter(ctx, in.PlantedChapterID)
		if err != nil {
			return dbError(err, "failed to get chapter")
		}
		if chapter == nil {
			return apperrors.ErrChapterNotFound.WithDetail(in.PlantedChapterID)
		}
		if f.BookID == "" {
			f.BookID = chapter.BookID
		}
		f.PlantedChapterID = chapter.ID
		f.PlantedChapter = chapter.OrderNum
	} else if in.PlantedChapter != nil {
		f.PlantedChapter = *in.PlantedChapter
	}
	if in.PlantedText != "" {
		f.PlantedText = in.PlantedText
	}
	if in.ExpectedResolve != "" {
		f.ExpectedResolve = in.ExpectedResolve
	}
	if in.RelatedCharacters != nil {
		characters, err := s.story.ListCharacters(ctx, f.BookID)
		if err != nil {
			return dbError(err, "failed to list characters")
		}
		f.RelatedCharacters = resolveCharacters(in.RelatedCharacters, entity.NewCharacterIndex(characters))
	}
	if in.Confidence != nil {
		c := *in.Confidence
		f.Confidence = &c
	}
	return nil
}

// Update 更新内容字段；终态伏笔同样允许修订文字
func (s *ForeshadowService) Update(ctx context.Context, id string, in *ForeshadowInput) (*entity.Foreshadow, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in != nil {
		in.BookID = ""
		if err := s.applyInput(ctx, f, in); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, invalidParam(err)
	}
	if err := s.foreshadows.Update(ctx, f); err != nil {
		return nil, dbError(err, "failed to update foreshadow")
	}
	return f, nil
}

// mutate 读取、在副本上执行迁移、成功后落库；失败时存储保持不变
func (s *ForeshadowService) mutate(ctx context.Context, id string, fn func(f *entity.Foreshadow) error) (*entity.Foreshadow, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := f.Clone()
	if err := fn(next); err != nil {
		return nil, foreshadowError(err)
	}
	if err := s.foreshadows.Update(ctx, next); err != nil {
		return nil, dbError(err, "failed to update foreshadow")
	}
	return next, nil
}

// UpdateStatus 按状态图迁移
func (s *ForeshadowService) UpdateStatus(ctx context.Context, id string, status entity.ForeshadowStatus, notes string) (*entity.Foreshadow, error) {
	if !status.Valid() {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown foreshadow status %q", status))
	}
	return s.mutate(ctx, id, func(f *entity.Foreshadow) error {
		return f.TransitionTo(status, strings.TrimSpace(notes))
	})
}

// AddResolutionChapter 记录部分回收章节
func (s *ForeshadowService) AddResolutionChapter(ctx context.Context, id string, chapterOrder int) (*entity.Foreshadow, error) {
	return s.mutate(ctx, id, func(f *entity.Foreshadow) error {
		return f.AddResolutionChapter(chapterOrder)
	})
}

// Resolve 标记回收；atChapter <= 0 时要求已有回收章节
func (s *ForeshadowService) Resolve(ctx context.Context, id, notes string, atChapter int) (*entity.Foreshadow, error) {
	return s.mutate(ctx, id, func(f *entity.Foreshadow) error {
		return f.Resolve(strings.TrimSpace(notes), atChapter)
	})
}

// Abandon 放弃伏笔
func (s *ForeshadowService) Abandon(ctx context.Context, id, reason string) (*entity.Foreshadow, error) {
	return s.mutate(ctx, id, func(f *entity.Foreshadow) error {
		return f.Abandon(strings.TrimSpace(reason))
	})
}

func (s *ForeshadowService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return dbError(s.foreshadows.Delete(ctx, id), "failed to delete foreshadow")
}

// Reminders 当前章节下已超过 minChapters 章仍未回收的伏笔；minChapters <= 0 使用默认阈值
func (s *ForeshadowService) Reminders(ctx context.Context, bookID string, currentChapter, minChapters int) ([]*entity.Foreshadow, error) {
	items, err := s.ListUnresolved(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return DueReminders(items, currentChapter, s.ReminderThreshold(minChapters)), nil
}

// ReminderThreshold 实际生效的提醒间隔，非正数时取配置默认值
func (s *ForeshadowService) ReminderThreshold(minChapters int) int {
	if minChapters <= 0 {
		return s.minChapters
	}
	return minChapters
}

// DueReminders 过滤并排序提醒：重要性降序，同重要性按埋设时间从早到晚
func DueReminders(items []*entity.Foreshadow, currentChapter, minChapters int) []*entity.Foreshadow {
	out := make([]*entity.Foreshadow, 0, len(items))
	for _, f := range items {
		if !f.Status.IsOpen() {
			continue
		}
		if f.Age(currentChapter) < minChapters {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Importance.Rank() != b.Importance.Rank() {
			return a.Importance.Rank() < b.Importance.Rank()
		}
		if a.PlantedChapter != b.PlantedChapter {
			return a.PlantedChapter < b.PlantedChapter
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// latestChapter 书籍最新章节序，无章节时为 0
func (s *ForeshadowService) latestChapter(ctx context.Context, bookID string) (int, error) {
	chapters, err := s.story.ListChapters(ctx, bookID)
	if err != nil {
		return 0, dbError(err, "failed to list chapters")
	}
	latest := 0
	for _, ch := range chapters {
		if ch.OrderNum > latest {
			latest = ch.OrderNum
		}
	}
	return latest, nil
}

// Stats 按状态计数，overdue 为最新章节下的提醒数量
func (s *ForeshadowService) Stats(ctx context.Context, bookID string) (*ForeshadowStats, error) {
	counts, err := s.foreshadows.CountByStatus(ctx, bookID)
	if err != nil {
		return nil, dbError(err, "failed to count foreshadows")
	}
	stats := &ForeshadowStats{ByStatus: make(map[string]int64, 4)}
	for _, st := range []entity.ForeshadowStatus{
		entity.ForeshadowStatusPlanted, entity.ForeshadowStatusPartial,
		entity.ForeshadowStatusResolved, entity.ForeshadowStatusAbandoned,
	} {
		n := counts[st]
		stats.ByStatus[string(st)] = n
		stats.Total += n
		if st.IsOpen() {
			stats.Open += n
		}
	}

	latest, err := s.latestChapter(ctx, bookID)
	if err != nil {
		return nil, err
	}
	stats.LatestChapter = latest
	if latest > 0 {
		due, err := s.Reminders(ctx, bookID, latest, 0)
		if err != nil {
			return nil, err
		}
		stats.Overdue = int64(len(due))
	}
	return stats, nil
}

// BuildContext chapterOrder 处的待回收伏笔提醒文本块
func (s *ForeshadowService) BuildContext(ctx context.Context, bookID string, chapterOrder int) (string, error) {
	items, err := s.foreshadows.ListPlantedBefore(ctx, bookID, chapterOrder)
	if err != nil {
		return "", dbError(err, "failed to list foreshadows")
	}
	return FormatReminders(DueReminders(items, chapterOrder, s.minChapters)), nil
}

func importanceLabel(i entity.ForeshadowImportance) string {
	switch i {
	case entity.ForeshadowImportanceMajor:
		return "重要伏笔"
	case entity.ForeshadowImportanceMinor:
		return "次要伏笔"
	default:
		return "暗线伏笔"
	}
}

// FormatReminders 待回收伏笔提醒文本块
func FormatReminders(items []*entity.Foreshadow) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("【待回收伏笔提醒】\n")
	for _, f := range items {
		fmt.Fprintf(&sb, "- %s（第%d章埋设，%s）\n", f.Title, f.PlantedChapter, importanceLabel(f.Importance))
		if f.ExpectedResolve != "" {
			fmt.Fprintf(&sb, "  预期回收：%s\n", f.ExpectedResolve)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SweepReminders 遍历存在未回收伏笔的书籍，刷新提醒指标
func (s *ForeshadowService) SweepReminders(ctx context.Context) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "memory.ForeshadowService.SweepReminders")
	defer span.End()

	bookIDs, err := s.foreshadows.ListBookIDsWithOpen(ctx)
	if err != nil {
		tracer.Fail(span, err)
		return nil, dbError(err, "failed to list books with open foreshadows")
	}

	result := make(map[string]int, len(bookIDs))
	for _, bookID := range bookIDs {
		latest, err := s.latestChapter(ctx, bookID)
		if err != nil {
			logger.Error(ctx, "reminder sweep failed", err, "book_id", bookID)
			continue
		}
		due, err := s.Reminders(ctx, bookID, latest, 0)
		if err != nil {
			logger.Error(ctx, "reminder sweep failed", err, "book_id", bookID)
			continue
		}
		result[bookID] = len(due)
		metrics.ForeshadowReminders.WithLabelValues(bookID).Set(float64(len(due)))
		if len(due) > 0 {
			logger.Info(ctx, "foreshadow reminders pending",
				"book_id", bookID,
				"latest_chapter", latest,
				"count", len(due),
			)
		}
	}
	return result, nil
}
