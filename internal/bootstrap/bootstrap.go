// Package bootstrap 按配置组装存储、解析器、向量模型与业务服务，供服务端和命令行共用
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"resume-search/internal/config"
	"resume-search/internal/constants"
	appLogger "resume-search/internal/logger"
	"resume-search/internal/outbox"
	"resume-search/internal/parser"
	"resume-search/internal/processor"
	"resume-search/internal/storage"
	"resume-search/internal/tracing"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/rs/zerolog"
)

// App 进程级共享的组件，启动时创建一次
type App struct {
	Config   *config.Config
	Storage  *storage.Storage
	Embedder *parser.OpenAIEmbedder
	Extract  *parser.EinoPDFTextExtractor
	Pipeline *processor.IngestPipeline
	Search   *processor.SearchService
	Relay    *outbox.MessageRelay

	tracer *tracing.Provider
}

// InitLogger 初始化 zerolog 并把 hertz 日志桥接过去
func InitLogger(cfg config.LoggerConfig) {
	appLogger.Init(appLogger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		TimeFormat:   cfg.TimeFormat,
		ReportCaller: cfg.ReportCaller,
		Output:       os.Stderr,
	})
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	glog.SetLevel(hertzLevel(appLogger.Logger.GetLevel()))
}

func hertzLevel(l zerolog.Level) glog.Level {
	switch l {
	case zerolog.TraceLevel:
		return glog.LevelTrace
	case zerolog.DebugLevel:
		return glog.LevelDebug
	case zerolog.WarnLevel:
		return glog.LevelWarn
	case zerolog.ErrorLevel:
		return glog.LevelError
	default:
		return glog.LevelInfo
	}
}

// New 按配置创建全部组件。MySQL 不可用时返回错误，其余基础设施失败时降级
func New(ctx context.Context, cfg *config.Config, serviceVersion string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: serviceVersion,
			Endpoint:       cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			appLogger.Warn().Err(err).Msg("初始化链路追踪失败，继续运行")
		} else {
			a.tracer = tp
		}
	}

	s, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Storage = s

	a.Embedder, err = parser.NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("初始化向量模型失败: %w", err)
	}
	a.Extract, err = parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("初始化PDF解析器失败: %w", err)
	}

	ingestOpts := []processor.IngestOption{
		processor.WithExtensions(cfg.Ingest.Extensions...),
		processor.WithBatchSize(cfg.Ingest.BatchSize),
	}
	if s.MinIO != nil {
		ingestOpts = append(ingestOpts, processor.WithArchiver(s.MinIO))
	}
	if s.Redis != nil {
		ingestOpts = append(ingestOpts, processor.WithRunLocker(s.Redis,
			config.GetDuration(cfg.Ingest.LockTTL, constants.DefaultIngestLockTTL)))
	}
	a.Pipeline, err = processor.NewIngestPipeline(cfg.Ingest.ResumeRoot, a.Extract, a.Embedder, s.MySQL, ingestOpts...)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	searchOpts := []processor.SearchOption{
		processor.WithTopK(cfg.Search.TopK),
		processor.WithPDFRoutePrefix(cfg.Search.PDFRoutePrefix),
	}
	if s.Redis != nil {
		searchOpts = append(searchOpts, processor.WithQueryCache(s.Redis,
			config.GetDuration(cfg.Search.QueryCacheTTL, constants.DefaultQueryVectorTTL)))
	}
	a.Search, err = processor.NewSearchService(a.Embedder, s.MySQL, searchOpts...)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if s.RabbitMQ != nil {
		a.Relay = outbox.NewMessageRelay(s.MySQL.DB(), s.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.RelayInterval, 5*time.Second)))
	}
	return a, nil
}

// Close 释放连接并导出剩余的追踪数据
func (a *App) Close(ctx context.Context) {
	if a.Relay != nil {
		a.Relay.Stop()
	}
	if a.Storage != nil {
		a.Storage.Close()
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn().Err(err).Msg("关闭链路追踪失败")
		}
	}
}
