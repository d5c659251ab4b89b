// Package logger 基于 slog 的结构化日志。
// 请求、书籍、章节与任务 ID 放在 context 中，经 contextHandler 自动带到每条日志上。
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ContextKey 日志关联字段在 context 中的键，同时用作输出字段名
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	RequestIDKey ContextKey = "request_id"
	BookIDKey    ContextKey = "book_id"
	ChapterIDKey ContextKey = "chapter_id"
	JobIDKey     ContextKey = "job_id"
)

// contextKeys 决定字段输出顺序
var contextKeys = []ContextKey{TraceIDKey, SpanIDKey, RequestIDKey, BookIDKey, ChapterIDKey, JobIDKey}

var (
	current atomic.Pointer[slog.Logger]
	level   = new(slog.LevelVar)
)

// Init 输出到 stdout
func Init(lvl string, format string) {
	InitWithWriter(os.Stdout, lvl, format)
}

// InitWithWriter format 为 json 时输出 JSON，否则输出 key=value 文本
func InitWithWriter(w io.Writer, lvl string, format string) {
	level.Set(parseLevel(lvl))
	opts := &slog.HandlerOptions{Level: level, AddSource: true}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(contextHandler{h})
	current.Store(l)
	slog.SetDefault(l)
}

// SetLevel 运行期调整日志级别
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default 未初始化时按 info/json 初始化
func Default() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init("info", "json")
	return current.Load()
}

// FromContext 返回已绑定 ctx 关联字段的 logger，适合在一个函数内多次打印
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if ctx == nil {
		return l
	}
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		return l.With(attrs...)
	}
	return l
}

// WithContext 把关联字段写入 ctx
func WithContext(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithChapter 写入书籍与章节 ID，空值跳过
func WithChapter(ctx context.Context, bookID, chapterID string) context.Context {
	if bookID != "" {
		ctx = context.WithValue(ctx, BookIDKey, bookID)
	}
	if chapterID != "" {
		ctx = context.WithValue(ctx, ChapterIDKey, chapterID)
	}
	return ctx
}

func Info(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelInfo, msg, args)
}

func Debug(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelDebug, msg, args)
}

func Warn(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelWarn, msg, args)
}

// Error err 为 nil 时不输出 error 字段
func Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	emit(ctx, slog.LevelError, msg, args)
}

// Fatal 记录错误后退出进程
func Fatal(ctx context.Context, msg string, err error, args ...any) {
	Error(ctx, msg, err, args...)
	os.Exit(1)
}

// emit 跳过包装函数，使 source 指向真实调用方
func emit(ctx context.Context, lvl slog.Level, msg string, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := Default()
	if !l.Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	r.Add(args...)
	_ = l.Handler().Handle(ctx, r)
}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			attrs = append(attrs, slog.Any(string(key), v))
		}
	}
	return attrs
}

// contextHandler 在 Handle 时从 ctx 取关联字段。
// FromContext 返回的 logger 已绑定这些字段，不应再调用其 XxxContext 方法，否则字段重复。
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, key := range contextKeys {
			if v := ctx.Value(key); v != nil {
				r.AddAttrs(slog.Any(string(key), v))
			}
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
