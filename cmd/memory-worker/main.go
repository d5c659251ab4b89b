// Package main 异步抽取与定时任务进程入口（memory-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"novel-memory-api/internal/config"
	einocallback "novel-memory-api/internal/infrastructure/eino/callback"
	"novel-memory-api/internal/scheduler"
	"novel-memory-api/internal/wire"
	"novel-memory-api/pkg/logger"
	"novel-memory-api/pkg/tracer"
)

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "memory-worker",
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	einocallback.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	if worker.Consumer != nil {
		if err := worker.Consumer.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start extraction consumer", err)
		}
		go worker.Consumer.MonitorDLQ(ctx, dlqAlertThreshold)
		logger.Info(ctx, "extraction consumer started")
	} else {
		logger.Warn(ctx, "no job queue configured, only scheduled tasks will run")
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler.ReminderSweepCron, worker.Services.Foreshadows)
		if err != nil {
			logger.Fatal(ctx, "failed to create scheduler", err)
		}
		sched.Start()
		logger.Info(ctx, "scheduler started", "reminder_sweep", cfg.Scheduler.ReminderSweepCron)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down worker...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if sched != nil {
		sched.Stop(stopCtx)
	}
	if err := worker.Services.Extraction.Shutdown(stopCtx); err != nil {
		logger.Warn(ctx, "extraction jobs still running at shutdown", "error", err.Error())
	}
	if worker.Consumer != nil {
		worker.Consumer.Stop()
	}
	cancel()

	logger.Info(ctx, "worker exited")
}
