// Package scheduler 定时任务：周期刷新伏笔提醒
package scheduler

import (
	"context"
	"fmt"
	"sync"

	rcron "github.com/robfig/cron/v3"

	"novel-memory-api/pkg/logger"
)

// DefaultReminderSpec 未配置时每小时扫描一次
const DefaultReminderSpec = "@every 1h"

// ReminderSweeper 扫描所有书籍的待回收伏笔，返回每本书的提醒数
type ReminderSweeper interface {
	SweepReminders(ctx context.Context) (map[string]int, error)
}

// Scheduler 基于 cron 表达式的定时任务执行器
// 同一任务上一轮未结束时跳过本轮
type Scheduler struct {
	cron    *rcron.Cron
	sweeper ReminderSweeper

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New 创建调度器并注册提醒扫描；spec 为空时使用 DefaultReminderSpec
func New(spec string, sweeper ReminderSweeper) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultReminderSpec
	}
	s := &Scheduler{
		cron:    rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger))),
		sweeper: sweeper,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(spec, func() { s.SweepOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid reminder sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop 停止调度并等待执行中的任务结束，ctx 到期时提前返回
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// SweepOnce 执行一次提醒扫描
func (s *Scheduler) SweepOnce(ctx context.Context) {
	result, err := s.sweeper.SweepReminders(ctx)
	if err != nil {
		logger.Error(ctx, "reminder sweep failed", err)
		return
	}
	total := 0
	for _, n := range result {
		total += n
	}
	logger.Info(ctx, "reminder sweep finished", "books", len(result), "reminders", total)
}
