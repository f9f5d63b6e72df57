package handler

import (
	"context"
	"errors"

	"resume-search/internal/logger"
	"resume-search/internal/processor"
	"resume-search/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Searcher 检索服务，*processor.SearchService 满足该接口
type Searcher interface {
	Search(ctx context.Context, jobDescription string) (*types.SearchResponse, error)
}

// SearchHandler 处理 /search
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// HandleSearch GET /search?job_description=...
//
// results 按相似度从低到高排列，最相似的在最后；score 越小越相似。
func (h *SearchHandler) HandleSearch(ctx context.Context, c *app.RequestContext) {
	jd := c.Query("job_description")

	resp, err := h.searcher.Search(ctx, jd)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrInvalidInput):
			c.JSON(consts.StatusBadRequest, utils.H{"detail": "Job description cannot be empty"})
		case errors.Is(err, processor.ErrNotFound):
			c.JSON(consts.StatusNotFound, utils.H{"detail": "No resumes found in the database."})
		default:
			logger.Ctx(ctx).Error().Err(err).Msg("检索简历失败")
			c.JSON(consts.StatusInternalServerError, utils.H{"detail": "Error searching resumes"})
		}
		return
	}
	c.JSON(consts.StatusOK, resp)
}
