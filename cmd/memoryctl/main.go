// Package main 记忆引擎运维命令行（memoryctl）
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"novel-memory-api/internal/config"
	einocallback "novel-memory-api/internal/infrastructure/eino/callback"
	"novel-memory-api/internal/wire"
	"novel-memory-api/pkg/logger"
)

const rootLongDesc string = `Operate the narrative memory engine from the command line.

Examples:
  memoryctl migrate --with-story
  memoryctl extract chapter <chapter-id>
  memoryctl extract book <book-id>
  memoryctl review chapter <book-id> <chapter-id> --levels A,B
  memoryctl review book <book-id>
  memoryctl reminders <book-id> --current 42
  memoryctl reminders sweep`

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	configDir string
	logLevel  string
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "memoryctl",
		Short:         "Narrative memory engine CLI",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configDir, "config", "c", "configs", "Directory containing config.yaml")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override observability.logging.level")

	cmd.AddCommand(
		newMigrateCmd(flags),
		newExtractCmd(flags),
		newReviewCmd(flags),
		newRemindersCmd(flags),
		newRulesCmd(flags),
	)
	return cmd
}

// loadConfig 加载配置并初始化日志，日志写入 stderr 以保持 stdout 为纯 JSON
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(g.configDir)
	if err != nil {
		return nil, err
	}
	level := cfg.Observability.Logging.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger.InitWithWriter(os.Stderr, level, cfg.Observability.Logging.Format)
	return cfg, nil
}

// services 初始化应用服务；调用方负责执行返回的 cleanup
func (g *globalFlags) services(ctx context.Context) (*wire.Services, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	einocallback.Init()
	return wire.InitializeServices(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
