package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"resume-search/internal/bootstrap"
	"resume-search/internal/config"

	"github.com/spf13/cobra"
)

var version = "1.0.0" //nolint:gochecknoglobals

var (
	configPath string
	resumeRoot string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "resumectl",
	Short:         "Resume ingestion and search tooling",
	Long:          `Discover resume PDFs, compute their embeddings, and query them from the command line.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&resumeRoot, "resume-root", "", "Override ingest.resume_root")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logger.level")
}

// loadConfig 读取配置并应用命令行覆盖，同时初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if resumeRoot != "" {
		cfg.Ingest.ResumeRoot = resumeRoot
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}
	bootstrap.InitLogger(cfg.Logger)
	return cfg, nil
}

// printJSON 以缩进格式输出 v
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化输出失败: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// withApp 组装组件后执行 fn，SIGINT/SIGTERM 会取消 ctx
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer app.Close(ctx)
	return fn(ctx, app)
}
