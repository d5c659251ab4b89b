// Package memory 提供基于进程内 map 的仓储实现，用于测试与单机运行
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"novel-memory-api/internal/domain/entity"
)

// Store 进程内存储，所有仓储共享一把读写锁，读写均返回副本
type Store struct {
	mu  sync.RWMutex
	seq int64
	now func() time.Time

	chapters    map[string]*entity.Chapter
	characters  map[string]*entity.Character
	settings    map[string]*entity.WorldSetting
	summaries   map[string]*entity.ChapterSummary
	events      map[string]*entity.StoryEvent
	foreshadows map[string]*entity.Foreshadow
	changes     map[string]*entity.CharacterStateChange
	issues      map[string]*entity.ReviewIssue
	reports     map[string]*entity.ReviewReport
	jobs        map[string]*entity.ExtractionJob
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{
		now:         time.Now,
		chapters:    make(map[string]*entity.Chapter),
		characters:  make(map[string]*entity.Character),
		settings:    make(map[string]*entity.WorldSetting),
		summaries:   make(map[string]*entity.ChapterSummary),
		events:      make(map[string]*entity.StoryEvent),
		foreshadows: make(map[string]*entity.Foreshadow),
		changes:     make(map[string]*entity.CharacterStateChange),
		issues:      make(map[string]*entity.ReviewIssue),
		reports:     make(map[string]*entity.ReviewReport),
		jobs:        make(map[string]*entity.ExtractionJob),
	}
}

// SetClock 替换时间源
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutChapter 写入章节，供单机模式与测试准备数据
func (s *Store) PutChapter(ch *entity.Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ch
	s.chapters[c.ID] = &c
}

// PutCharacter 写入角色
func (s *Store) PutCharacter(ch *entity.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[ch.ID] = cloneCharacter(ch)
}

// PutWorldSetting 写入世界观设定
func (s *Store) PutWorldSetting(ws *entity.WorldSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ws
	s.settings[c.ID] = &c
}

// errReadOnly 只读快照内发生写入
var errReadOnly = errors.New("memory store: write inside read-only snapshot")

type txScopeKey struct{}

// txScope 标记 ctx 已持有某个 Store 的锁；write 为 false 时只持有读锁
type txScope struct {
	store *Store
	write bool
}

func (s *Store) scope(ctx context.Context) *txScope {
	if sc, ok := ctx.Value(txScopeKey{}).(*txScope); ok && sc.store == s {
		return sc
	}
	return nil
}

// lock 获取写锁；ctx 已在本存储的事务内时复用事务持有的锁
func (s *Store) lock(ctx context.Context) (func(), error) {
	if sc := s.scope(ctx); sc != nil {
		if !sc.write {
			return nil, errReadOnly
		}
		return func() {}, nil
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

// rlock 获取读锁；ctx 已持有锁时不再重复加锁
func (s *Store) rlock(ctx context.Context) func() {
	if s.scope(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// checkpoint 记忆记录的浅拷贝；仓储只整条替换 map 中的值，不原地修改
type checkpoint struct {
	seq         int64
	summaries   map[string]*entity.ChapterSummary
	events      map[string]*entity.StoryEvent
	foreshadows map[string]*entity.Foreshadow
	changes     map[string]*entity.CharacterStateChange
	issues      map[string]*entity.ReviewIssue
	reports     map[string]*entity.ReviewReport
	jobs        map[string]*entity.ExtractionJob
}

func (s *Store) checkpoint() *checkpoint {
	return &checkpoint{
		seq:         s.seq,
		summaries:   maps.Clone(s.summaries),
		events:      maps.Clone(s.events),
		foreshadows: maps.Clone(s.foreshadows),
		changes:     maps.Clone(s.changes),
		issues:      maps.Clone(s.issues),
		reports:     maps.Clone(s.reports),
		jobs:        maps.Clone(s.jobs),
	}
}

func (s *Store) restore(cp *checkpoint) {
	s.seq = cp.seq
	s.summaries = cp.summaries
	s.events = cp.events
	s.foreshadows = cp.foreshadows
	s.changes = cp.changes
	s.issues = cp.issues
	s.reports = cp.reports
	s.jobs = cp.jobs
}

// TxManager 内存事务管理器：事务期间独占写锁，fn 返回错误或 panic 时回滚到事务开始前
type TxManager struct {
	s *Store
}

// NewTxManager 创建内存事务管理器
func NewTxManager(s *Store) *TxManager {
	return &TxManager{s: s}
}

// WithTransaction 在写锁内执行，已在事务中时直接复用
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if sc := m.s.scope(ctx); sc != nil {
		if !sc.write {
			return errReadOnly
		}
		return fn(ctx)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	cp := m.s.checkpoint()
	committed := false
	defer func() {
		if !committed {
			m.s.restore(cp)
		}
	}()
	if err := fn(context.WithValue(ctx, txScopeKey{}, &txScope{store: m.s, write: true})); err != nil {
		return err
	}
	committed = true
	return nil
}

// WithSnapshot 在读锁内执行，期间的全部读取看到同一份数据；快照内写入返回错误
func (m *TxManager) WithSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.s.scope(ctx) != nil {
		return fn(ctx)
	}

	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return fn(context.WithValue(ctx, txScopeKey{}, &txScope{store: m.s}))
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// collect 按过滤条件收集副本并排序
func collect[T any](m map[string]*T, keep func(*T) bool, clone func(*T) *T, cmp func(a, b *T) int) []*T {
	out := make([]*T, 0)
	for _, v := range m {
		if keep(v) {
			out = append(out, clone(v))
		}
	}
	slices.SortFunc(out, cmp)
	return out
}

func cloneCharacter(c *entity.Character) *entity.Character {
	out := *c
	out.Aliases = slices.Clone(c.Aliases)
	if c.Profile != nil {
		p := *c.Profile
		out.Profile = &p
	}
	return &out
}

func cloneChapter(c *entity.Chapter) *entity.Chapter {
	out := *c
	return &out
}

func cloneSetting(ws *entity.WorldSetting) *entity.WorldSetting {
	out := *ws
	return &out
}

func cloneReport(r *entity.ReviewReport) *entity.ReviewReport {
	out := *r
	out.ChapterIDs = slices.Clone(r.ChapterIDs)
	out.Levels = slices.Clone(r.Levels)
	out.FailedRules = slices.Clone(r.FailedRules)
	out.IssuesByLevel = make(map[string]int, len(r.IssuesByLevel))
	for k, v := range r.IssuesByLevel {
		out.IssuesByLevel[k] = v
	}
	out.IssuesByType = make(map[string]int, len(r.IssuesByType))
	for k, v := range r.IssuesByType {
		out.IssuesByType[k] = v
	}
	out.Issues = make([]*entity.ReviewIssue, 0, len(r.Issues))
	for _, i := range r.Issues {
		out.Issues = append(out.Issues, i.Clone())
	}
	return &out
}

func timeCmp(a, b time.Time) int {
	return a.Compare(b)
}
