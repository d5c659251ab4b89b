//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"novel-memory-api/internal/config"
	"novel-memory-api/internal/infrastructure/llm"
	"novel-memory-api/internal/interfaces/http/router"
	"novel-memory-api/internal/workflow/chain"
	workflowport "novel-memory-api/internal/workflow/port"
)

// InitializeApp 初始化 API 进程
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		ServiceSet,
		HTTPSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化异步任务进程
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		ServiceSet,
		ProvideConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeServices 仅初始化应用服务（命令行工具）
func InitializeServices(ctx context.Context, cfg *config.Config) (*Services, func(), error) {
	wire.Build(ServiceSet)
	return nil, nil, nil
}

// DataSet 存储与协调设施
var DataSet = wire.NewSet(
	ProvideStores,
	ProvideCoordination,
	ProvideVector,
)

// LLMSet 模型工厂与调用链
var LLMSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(workflowport.ChatModelFactory), new(*llm.EinoFactory)),
	chain.NewExtractionChain,
	chain.NewReviewChain,
)

// ServiceSet 应用服务
var ServiceSet = wire.NewSet(
	DataSet,
	LLMSet,
	ProvideRules,
	ProvideServices,
)

// HTTPSet 路由与处理器
var HTTPSet = wire.NewSet(
	ProvideHandlers,
	ProvideHealthHandler,
	ProvideAILimit,
	router.New,
)
