package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// errShutdown 进程退出时取消在途任务的原因
	errShutdown = errors.New("extraction service shutting down")
	// errCancelRequested 调用方取消任务的原因
	errCancelRequested = errors.New(MsgJobCancelled)
	// errJobClosed 任务已在别处结束，当前执行者停止写回
	errJobClosed = errors.New("extraction job already finished")
)

// jobRunner 登记本进程内运行的任务，提供按任务取消与退出时的等待
type jobRunner struct {
	base context.Context
	stop context.CancelCauseFunc

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup
}

func newJobRunner() *jobRunner {
	base, stop := context.WithCancelCause(context.Background())
	return &jobRunner{
		base:    base,
		stop:    stop,
		cancels: make(map[string]context.CancelCauseFunc),
	}
}

// start 登记任务；ok 为 false 表示服务正在退出或该任务已在本进程运行
func (r *jobRunner) start(ctx context.Context, jobID string) (context.Context, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, false
	}
	if _, running := r.cancels[jobID]; running {
		return nil, nil, false
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	stopAfter := context.AfterFunc(r.base, func() { cancel(context.Cause(r.base)) })
	r.cancels[jobID] = cancel
	r.wg.Add(1)

	return jobCtx, func() {
		stopAfter()
		cancel(nil)
		r.mu.Lock()
		delete(r.cancels, jobID)
		r.mu.Unlock()
		r.wg.Done()
	}, true
}

func (r *jobRunner) cancel(jobID string, cause error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[jobID]
	if ok {
		cancel(cause)
	}
	return ok
}

// detach 让抽取脱离调用方的取消继续完成，但仍随退出取消并计入等待
func (r *jobRunner) detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancelCause := context.WithCancelCause(context.WithoutCancel(ctx))
	stopAfter := context.AfterFunc(r.base, func() { cancelCause(context.Cause(r.base)) })
	runCtx, cancel := context.WithTimeout(runCtx, timeout)

	r.mu.Lock()
	tracked := !r.closed
	if tracked {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	return runCtx, func() {
		cancel()
		stopAfter()
		cancelCause(nil)
		if tracked {
			r.wg.Done()
		}
	}
}

// shutdown 取消全部在途任务并等待其写回状态，ctx 到期时放弃等待
func (r *jobRunner) shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop(errShutdown)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
