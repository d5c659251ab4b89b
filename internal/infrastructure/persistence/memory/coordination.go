package memory

import (
	"context"
	"sync"
	"time"

	"novel-memory-api/internal/domain/entity"
)

// Guard 进程内按键互斥
type Guard struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewGuard 创建进程内互斥
func NewGuard() *Guard {
	return &Guard{held: make(map[string]time.Time), now: time.Now}
}

// Acquire 占用 key；过期的占用视为已释放
func (g *Guard) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	g.held[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.held[key].Equal(exp) {
				delete(g.held, key)
			}
		})
	}, true, nil
}

// Claim 窗口内首次调用返回 true
func (g *Guard) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	_, ok, err := g.Acquire(ctx, "debounce:"+key, window)
	return ok, err
}

type cachedReport struct {
	report  *entity.ReviewReport
	expires time.Time
}

// ReportCache 进程内报告缓存
type ReportCache struct {
	mu      sync.RWMutex
	reports map[string]cachedReport
	now     func() time.Time
}

// NewReportCache 创建进程内报告缓存
func NewReportCache() *ReportCache {
	return &ReportCache{reports: make(map[string]cachedReport), now: time.Now}
}

func (c *ReportCache) PutReport(_ context.Context, chapterID string, report *entity.ReviewReport, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[chapterID] = cachedReport{report: cloneReport(report), expires: c.now().Add(ttl)}
	return nil
}

func (c *ReportCache) GetReport(_ context.Context, chapterID string) (*entity.ReviewReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.reports[chapterID]
	if !ok || !c.now().Before(cached.expires) {
		return nil, nil
	}
	return cloneReport(cached.report), nil
}
