// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/application/review"
	"novel-memory-api/internal/config"
	"novel-memory-api/internal/domain/repository"
	infraembedding "novel-memory-api/internal/infrastructure/embedding"
	"novel-memory-api/internal/infrastructure/messaging"
	memstore "novel-memory-api/internal/infrastructure/persistence/memory"
	"novel-memory-api/internal/infrastructure/persistence/milvus"
	"novel-memory-api/internal/infrastructure/persistence/postgres"
	"novel-memory-api/internal/infrastructure/persistence/redis"
	"novel-memory-api/internal/interfaces/http/handler"
	"novel-memory-api/internal/interfaces/http/middleware"
	"novel-memory-api/internal/interfaces/http/router"
	"novel-memory-api/internal/workflow/chain"
	workflowport "novel-memory-api/internal/workflow/port"
	"novel-memory-api/pkg/logger"
)

// Stores 记忆仓储集合，按 storage.driver 选择 postgres 或进程内实现
type Stores struct {
	Story       repository.StoryRepository
	Summaries   repository.SummaryRepository
	Events      repository.EventRepository
	Foreshadows repository.ForeshadowRepository
	Changes     repository.StateChangeRepository
	Jobs        repository.JobRepository
	Issues      repository.ReviewIssueRepository
	Reports     repository.ReviewReportRepository
	Tx          repository.Transactor

	// Postgres 为 nil 表示使用进程内存储
	Postgres *postgres.Client
}

// Coordination 跨进程协调设施；进程内存储时全部退化为单进程实现
type Coordination struct {
	Guard    workflowport.InFlightGuard
	Debounce workflowport.Debouncer
	Cache    workflowport.ReportCache
	// Queue 为 nil 时异步抽取在 API 进程内执行
	Queue workflowport.JobQueue
	Redis *redis.Client
}

// Vector 摘要语义召回，未启用时 Index 为 nil
type Vector struct {
	Index  workflowport.SummaryIndex
	Client *milvus.Client
}

// Services 应用服务集合
type Services struct {
	Summaries   *memory.SummaryService
	Events      *memory.EventService
	States      *memory.CharacterStateService
	Foreshadows *memory.ForeshadowService
	Context     *memory.ContextBuilder
	Extraction  *memory.ExtractionService
	Review      *review.Engine
	Issues      *review.IssueService
	Realtime    *review.RealtimeService
}

// App API 进程
type App struct {
	Router   *router.Router
	Services *Services
}

// Worker 异步任务进程；Consumer 为 nil 表示未配置消息队列
type Worker struct {
	Services *Services
	Consumer *messaging.Consumer
}

// ProvideStores 按存储驱动提供仓储
func ProvideStores(ctx context.Context, cfg *config.Config) (*Stores, func(), error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		s := memstore.NewStore()
		return &Stores{
			Story:       memstore.NewStoryRepository(s),
			Summaries:   memstore.NewSummaryRepository(s),
			Events:      memstore.NewEventRepository(s),
			Foreshadows: memstore.NewForeshadowRepository(s),
			Changes:     memstore.NewStateChangeRepository(s),
			Jobs:        memstore.NewJobRepository(s),
			Issues:      memstore.NewReviewIssueRepository(s),
			Reports:     memstore.NewReviewReportRepository(s),
			Tx:          memstore.NewTxManager(s),
		}, func() {}, nil
	}

	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return &Stores{
		Story:       postgres.NewStoryRepository(client),
		Summaries:   postgres.NewSummaryRepository(client),
		Events:      postgres.NewEventRepository(client),
		Foreshadows: postgres.NewForeshadowRepository(client),
		Changes:     postgres.NewStateChangeRepository(client),
		Jobs:        postgres.NewJobRepository(client),
		Issues:      postgres.NewReviewIssueRepository(client),
		Reports:     postgres.NewReviewReportRepository(client),
		Tx:          postgres.NewTxManager(client),
		Postgres:    client,
	}, cleanup, nil
}

// ProvideCoordination 提供互斥锁、防抖、报告缓存与任务队列
func ProvideCoordination(ctx context.Context, cfg *config.Config, stores *Stores) (*Coordination, func(), error) {
	if stores.Postgres == nil {
		guard := memstore.NewGuard()
		return &Coordination{
			Guard:    guard,
			Debounce: guard,
			Cache:    memstore.NewReportCache(),
		}, func() {}, nil
	}

	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	locker := redis.NewLocker(client)
	return &Coordination{
		Guard:    locker,
		Debounce: locker,
		Cache:    redis.NewReportCache(client),
		Queue:    messaging.NewProducer(client.Redis(), int64(cfg.Messaging.RedisStream.MaxLen)),
		Redis:    client,
	}, cleanup, nil
}

// ProvideVector 召回未启用或依赖不可用时返回空索引，不阻塞启动
func ProvideVector(ctx context.Context, cfg *config.Config) (*Vector, func(), error) {
	if !cfg.Memory.Recall.Enabled || !cfg.Vector.Milvus.Enabled {
		return &Vector{}, func() {}, nil
	}

	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, summary recall disabled", "error", err.Error())
		return &Vector{}, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, summary recall disabled", "error", err.Error())
		return &Vector{}, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}

	repo := milvus.NewRepository(client, cfg.Embedding.Dimension)
	if err := repo.EnsureCollection(ctx); err != nil {
		logger.Warn(ctx, "failed to ensure summary collection, summary recall disabled", "error", err.Error())
		return &Vector{Client: client}, cleanup, nil
	}
	return &Vector{Index: milvus.NewSummaryIndex(repo, embedder), Client: client}, cleanup, nil
}

// ProvideRules AI 规则关闭时只注册确定性规则
func ProvideRules(cfg *config.Config, reviewChain *chain.ReviewChain) []review.Rule {
	if !cfg.Review.AIRulesEnabled {
		return review.NewDeterministicRules()
	}
	return review.DefaultRules(reviewChain, cfg.LLM.DefaultProvider, cfg.Review.AIMaxChars)
}

// ProvideServices 组装应用服务
func ProvideServices(
	cfg *config.Config,
	stores *Stores,
	coord *Coordination,
	vector *Vector,
	extractionChain *chain.ExtractionChain,
	rules []review.Rule,
) *Services {
	builder := memory.NewContextBuilder(
		stores.Summaries, stores.Events, stores.Foreshadows, stores.Changes,
		stores.Story, stores.Tx, vector.Index, cfg.Memory,
	)
	extraction := memory.NewExtractionService(memory.ExtractionDeps{
		Story:       stores.Story,
		Summaries:   stores.Summaries,
		Events:      stores.Events,
		Changes:     stores.Changes,
		Foreshadows: stores.Foreshadows,
		Jobs:        stores.Jobs,
		Tx:          stores.Tx,
		Chain:       extractionChain,
		Guard:       coord.Guard,
		Queue:       coord.Queue,
		Index:       vector.Index,
	}, cfg.Memory)
	engine := review.NewEngine(rules, builder, stores.Story, stores.Issues, stores.Reports, stores.Tx, cfg.Review)

	return &Services{
		Summaries:   memory.NewSummaryService(stores.Summaries, stores.Story, vector.Index, cfg.Memory),
		Events:      memory.NewEventService(stores.Events, stores.Story, stores.Tx),
		States:      memory.NewCharacterStateService(stores.Changes, stores.Story, stores.Tx),
		Foreshadows: memory.NewForeshadowService(stores.Foreshadows, stores.Story, cfg.Memory),
		Context:     builder,
		Extraction:  extraction,
		Review:      engine,
		Issues:      review.NewIssueService(stores.Issues, stores.Reports, stores.Tx),
		Realtime:    review.NewRealtimeService(engine, coord.Debounce, coord.Cache, cfg.Review),
	}
}

// ProvideHandlers 提供 HTTP 处理器
func ProvideHandlers(svc *Services) *router.Handlers {
	return &router.Handlers{
		Summary:    handler.NewSummaryHandler(svc.Summaries, svc.Extraction),
		Event:      handler.NewEventHandler(svc.Events),
		State:      handler.NewStateHandler(svc.States),
		Foreshadow: handler.NewForeshadowHandler(svc.Foreshadows),
		Context:    handler.NewContextHandler(svc.Context),
		Extraction: handler.NewExtractionHandler(svc.Extraction),
		Review:     handler.NewReviewHandler(svc.Review, svc.Issues, svc.Realtime),
	}
}

// ProvideHealthHandler 存储为必需依赖，Redis 与 Milvus 为可选依赖
func ProvideHealthHandler(cfg *config.Config, stores *Stores, coord *Coordination, vector *Vector) *handler.HealthHandler {
	deps := make([]handler.Dependency, 0, 3)
	if stores.Postgres != nil {
		deps = append(deps, handler.Dependency{Name: "postgres", Checker: stores.Postgres})
	}
	if coord.Redis != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Checker: coord.Redis})
	}
	if vector.Client != nil {
		deps = append(deps, handler.Dependency{Name: "milvus", Checker: vector.Client, Optional: true})
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}

// ProvideAILimit 模型调用路由的限流中间件；没有 Redis 时不限流
func ProvideAILimit(cfg *config.Config, coord *Coordination) gin.HandlerFunc {
	return middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
		Enabled:           cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             cfg.Security.RateLimit.Burst,
	}, coord.Redis)
}

// ProvideConsumer 订阅抽取任务流；进程内存储没有队列
func ProvideConsumer(cfg *config.Config, coord *Coordination, svc *Services) *messaging.Consumer {
	if coord.Redis == nil {
		return nil
	}
	stream := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(coord.Redis.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamExtraction,
		Group:         messaging.ConsumerGroupExtractor,
		ConsumerName:  consumerName(),
		BlockTimeout:  stream.BlockTimeout,
		ClaimInterval: stream.ClaimInterval,
		RetryLimit:    stream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    stream.RetryBackoff.Initial,
			Max:        stream.RetryBackoff.Max,
			Multiplier: stream.RetryBackoff.Multiplier,
		},
	})

	run := func(ctx context.Context, msg *messaging.Message) error {
		payload, err := msg.JobPayload()
		if err != nil {
			return err
		}
		return svc.Extraction.RunJob(ctx, payload.JobID)
	}
	consumer.RegisterHandler(messaging.MessageTypeChapterExtract, run)
	consumer.RegisterHandler(messaging.MessageTypeBookExtract, run)
	return consumer
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
