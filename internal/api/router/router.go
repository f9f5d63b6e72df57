package router

import (
	"context"
	"slices"
	"strings"
	"time"

	"resume-search/internal/api/handler"
	"resume-search/internal/constants"
	"resume-search/internal/logger"
	"resume-search/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/keyauth"
)

const headerRequestID = "X-Request-ID"

// Options 路由所需的处理器与开关
type Options struct {
	Search *handler.SearchHandler
	PDF    *handler.PDFHandler
	Health *handler.HealthHandler

	PDFRoutePrefix   string   // 默认 /pdfs
	StaticDir        string   // 为空则不挂载
	StaticPrefix     string   // 默认 /static
	APIKeys          []string // 非空时 /search 与 PDF 路由需要 Bearer key
	CORSAllowOrigins []string // 为空允许所有来源
}

// RegisterRoutes 注册中间件与路由
func RegisterRoutes(h *server.Hertz, opts Options) {
	h.Use(RequestID(), AccessLog(), CORS(opts.CORSAllowOrigins))

	if opts.Health != nil {
		h.GET("/health", opts.Health.HandleHealth)
	}

	api := h.Group("")
	if len(opts.APIKeys) > 0 {
		api.Use(APIKeyAuth(opts.APIKeys))
	}
	if opts.Search != nil {
		api.GET("/search", opts.Search.HandleSearch)
	}
	if opts.PDF != nil {
		prefix := opts.PDFRoutePrefix
		if prefix == "" {
			prefix = constants.DefaultPDFRoutePrefix
		}
		api.GET("/"+strings.Trim(prefix, "/")+"/:filename", opts.PDF.HandleGetPDF)
	}

	if opts.StaticDir != "" {
		prefix := opts.StaticPrefix
		if prefix == "" {
			prefix = "/static"
		}
		h.StaticFS(prefix, &app.FS{
			Root:        opts.StaticDir,
			PathRewrite: app.NewPathSlashesStripper(1),
		})
	}
}

// RequestID 透传或生成请求ID，并把带 request_id 的日志实例放入上下文
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Response.Header.Set(headerRequestID, id)
		c.Next(logger.WithRequestID(ctx, id))
	}
}

// AccessLog 记录请求方法、路径、状态码与耗时
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		glog.CtxInfof(ctx, "%s %s -> %d (%s)",
			string(c.Method()), string(c.Path()), c.Response.StatusCode(), time.Since(start))
	}
}

// CORS 允许跨域访问；allowOrigins 为空或包含 "*" 时允许所有来源
func CORS(allowOrigins []string) app.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{headerRequestID, "Content-Disposition"},
		MaxAge:        10 * time.Minute,
	}
	if len(allowOrigins) == 0 || slices.Contains(allowOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// APIKeyAuth 校验 Authorization: Bearer <key>
func APIKeyAuth(keys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			if slices.Contains(keys, key) {
				return true, nil
			}
			glog.CtxWarnf(ctx, "API key 校验失败: %s %s key=%s", string(c.Method()), string(c.Path()),
				tracing.SafeAttributeValue("api_key", key, 0))
			return false, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"detail": "Invalid or missing API key"})
		}),
	)
}
