package handler

import (
	"context"

	"resume-search/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ResumeCounter 统计简历数量，*storage.MySQL 满足该接口
type ResumeCounter interface {
	CountResumes(ctx context.Context) (total int64, processed int64, err error)
}

// HealthHandler 处理 /health
type HealthHandler struct {
	counter ResumeCounter
}

func NewHealthHandler(counter ResumeCounter) *HealthHandler {
	return &HealthHandler{counter: counter}
}

// HandleHealth 返回服务状态与简历统计，数据库不可用时返回 503
func (h *HealthHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	total, processed, err := h.counter.CountResumes(ctx)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("健康检查失败")
		c.JSON(consts.StatusServiceUnavailable, utils.H{"status": "unavailable", "detail": "database unavailable"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"status":            "ok",
		"resumes_total":     total,
		"resumes_processed": processed,
	})
}
