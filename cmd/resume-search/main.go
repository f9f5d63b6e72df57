package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-search/internal/api/handler"
	"resume-search/internal/api/router"
	"resume-search/internal/bootstrap"
	"resume-search/internal/config"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"         //nolint:gochecknoglobals
	serviceName = "resume-search" //nolint:gochecknoglobals
)

func main() {
	var (
		configPath string
		address    string
		resumeRoot string
		noMigrate  bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时按默认路径查找")
	pflag.StringVarP(&address, "address", "a", "", "监听地址，覆盖 server.address")
	pflag.StringVar(&resumeRoot, "resume-root", "", "简历根目录，覆盖 ingest.resume_root")
	pflag.BoolVar(&noMigrate, "no-migrate", false, "启动时不执行数据库迁移")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap.InitLogger(config.LoggerConfig{})
		glog.Fatalf("加载配置失败: %v", err)
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if resumeRoot != "" {
		cfg.Ingest.ResumeRoot = resumeRoot
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = serviceName
	}
	bootstrap.InitLogger(cfg.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, version)
	if err != nil {
		glog.Fatalf("初始化失败: %v", err)
	}
	defer app.Close(ctx)

	if !noMigrate {
		if err := app.Storage.MySQL.AutoMigrate(ctx); err != nil {
			glog.Fatalf("数据库迁移失败: %v", err)
		}
	}
	if app.Relay != nil {
		app.Relay.Start(ctx)
		glog.Info("消息中继服务已启动")
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, router.Options{
		Search:           handler.NewSearchHandler(app.Search),
		PDF:              handler.NewPDFHandler(app.Pipeline.Root()),
		Health:           handler.NewHealthHandler(app.Storage.MySQL),
		PDFRoutePrefix:   cfg.Search.PDFRoutePrefix,
		StaticDir:        cfg.Server.StaticDir,
		StaticPrefix:     cfg.Server.StaticPrefix,
		APIKeys:          cfg.Server.APIKeys,
		CORSAllowOrigins: cfg.Server.CORSAllowOrigins,
	})
	glog.Infof("HTTP 服务器启动中，监听地址: %s, 简历目录: %s", cfg.Server.Address, app.Pipeline.Root())

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	cancel()
	glog.Info("优雅退出完成")
}
