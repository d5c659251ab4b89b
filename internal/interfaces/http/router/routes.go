// Package router 提供 HTTP 路由配置
package router

import (
	"novel-memory-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// Handlers v1 路由依赖的处理器集合
type Handlers struct {
	Summary    *handler.SummaryHandler
	Event      *handler.EventHandler
	State      *handler.StateHandler
	Foreshadow *handler.ForeshadowHandler
	Context    *handler.ContextHandler
	Extraction *handler.ExtractionHandler
	Review     *handler.ReviewHandler
}

// RegisterV1Routes 注册 v1 版本路由；aiLimit 挂在会调用模型的路由上
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers, aiLimit gin.HandlerFunc) {
	// 书籍维度
	books := v1.Group("/books/:bid")
	{
		// 章节摘要
		books.GET("/summaries", h.Summary.ListByBook)
		books.GET("/summaries/before", h.Summary.ListBefore)
		books.GET("/summaries/recent", h.Summary.ListRecent)
		books.GET("/summaries/context", h.Summary.BuildContext)

		// 剧情事件
		books.GET("/events", h.Event.ListByBook)
		books.GET("/events/major", h.Event.ListMajor)
		books.GET("/events/before", h.Event.ListBefore)
		books.GET("/events/context", h.Event.BuildContext)
		books.GET("/characters/:charId/events", h.Event.ListByCharacter)

		// 角色状态
		books.GET("/state-changes", h.State.ListByBook)
		books.GET("/state-changes/context", h.State.BuildContext)

		// 伏笔
		books.GET("/foreshadows", h.Foreshadow.List)
		books.POST("/foreshadows", h.Foreshadow.Create)
		books.GET("/foreshadows/unresolved", h.Foreshadow.ListUnresolved)
		books.GET("/foreshadows/major-unresolved", h.Foreshadow.ListMajorUnresolved)
		books.GET("/foreshadows/stats", h.Foreshadow.Stats)
		books.GET("/foreshadows/reminders", h.Foreshadow.Reminders)
		books.GET("/foreshadows/context", h.Foreshadow.BuildContext)

		// 续写上下文
		books.GET("/context", h.Context.Build)

		// 审核
		books.POST("/review", aiLimit, h.Review.ReviewBook)
		books.POST("/review/chapters/:cid", aiLimit, h.Review.ReviewChapter)
		books.POST("/review/batch", aiLimit, h.Review.ReviewBatch)
		books.POST("/review/quick/:cid", h.Review.QuickReview)
		books.GET("/review/issues", h.Review.ListIssues)
		books.DELETE("/review/issues", h.Review.ClearIssues)
		books.GET("/review/issues/stats", h.Review.IssueStats)
		books.GET("/review/reports", h.Review.ListReports)

		// 抽取任务
		books.POST("/extraction/book", aiLimit, h.Extraction.ExtractBook)
		books.GET("/extraction/jobs", h.Extraction.ListJobs)
	}

	// 章节维度
	chapters := v1.Group("/chapters/:cid")
	{
		chapters.GET("/summary", h.Summary.GetByChapter)
		chapters.POST("/summary/generate", aiLimit, h.Summary.Generate)
		chapters.GET("/summary/stream", aiLimit, h.Summary.Stream)

		chapters.GET("/events", h.Event.ListByChapter)
		chapters.POST("/events/extract", aiLimit, h.Extraction.Extract)
		chapters.GET("/state-changes", h.State.ListByChapter)
		chapters.GET("/review/issues", h.Review.ListChapterIssues)

		chapters.POST("/extract", aiLimit, h.Extraction.Extract)
		chapters.POST("/extract/async", aiLimit, h.Extraction.ExtractAsync)
	}

	// 摘要管理
	summaries := v1.Group("/summaries")
	{
		summaries.POST("", h.Summary.Upsert)
		summaries.PUT("/:id", h.Summary.Update)
		summaries.DELETE("/:id", h.Summary.Delete)
	}

	// 事件管理
	events := v1.Group("/events")
	{
		events.POST("", h.Event.Create)
		events.POST("/batch", h.Event.BatchCreate)
		events.GET("/:id", h.Event.Get)
		events.PUT("/:id", h.Event.Update)
		events.DELETE("/:id", h.Event.Delete)
	}

	// 角色状态
	characters := v1.Group("/characters/:charId")
	{
		characters.GET("/state-changes", h.State.ListByCharacter)
		characters.GET("/state", h.State.State)
		characters.GET("/state/history", h.State.History)
	}
	stateChanges := v1.Group("/state-changes")
	{
		stateChanges.POST("", h.State.Record)
		stateChanges.POST("/batch", h.State.BatchRecord)
	}

	// 伏笔管理
	foreshadows := v1.Group("/foreshadows")
	{
		foreshadows.GET("/:id", h.Foreshadow.Get)
		foreshadows.PUT("/:id", h.Foreshadow.Update)
		foreshadows.DELETE("/:id", h.Foreshadow.Delete)
		foreshadows.PUT("/:id/status", h.Foreshadow.UpdateStatus)
		foreshadows.POST("/:id/resolution-chapters", h.Foreshadow.AddResolutionChapter)
		foreshadows.POST("/:id/resolve", h.Foreshadow.Resolve)
		foreshadows.POST("/:id/abandon", h.Foreshadow.Abandon)
	}

	// 审核问题与报告
	review := v1.Group("/review")
	{
		review.GET("/rules", h.Review.ListRules)
		review.PUT("/issues/status", h.Review.BatchUpdateIssueStatus)
		review.GET("/issues/:id", h.Review.GetIssue)
		review.PUT("/issues/:id/status", h.Review.UpdateIssueStatus)
		review.DELETE("/issues/:id", h.Review.DeleteIssue)
		review.GET("/reports/:id", h.Review.GetReport)
		review.POST("/realtime", h.Review.TriggerRealtime)
		review.GET("/realtime/:cid", h.Review.LatestRealtime)
	}

	// 抽取任务查询与取消
	v1.GET("/extraction/jobs/:id", h.Extraction.GetJob)
	v1.POST("/extraction/jobs/:id/cancel", h.Extraction.CancelJob)
}
