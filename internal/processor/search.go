package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"resume-search/internal/constants"
	appLogger "resume-search/internal/logger"
	"resume-search/internal/ranker"
	"resume-search/internal/tracing"
	"resume-search/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SearchOption 配置 SearchService
type SearchOption func(*SearchService)

// WithTopK 设置返回结果数量
func WithTopK(k int) SearchOption {
	return func(s *SearchService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithPDFRoutePrefix 设置 file_path 的路由前缀
func WithPDFRoutePrefix(prefix string) SearchOption {
	return func(s *SearchService) {
		if prefix != "" {
			s.pdfPrefix = "/" + strings.Trim(prefix, "/")
		}
	}
}

// WithQueryCache 缓存查询文本的向量，ttl<=0 时不缓存
func WithQueryCache(cache QueryVectorCache, ttl time.Duration) SearchOption {
	return func(s *SearchService) {
		if ttl > 0 {
			s.cache = cache
			s.cacheTTL = ttl
		}
	}
}

// WithSearchLogger 设置日志记录器
func WithSearchLogger(l zerolog.Logger) SearchOption {
	return func(s *SearchService) { s.logger = l }
}

// SearchService 用岗位描述检索最相似的简历
type SearchService struct {
	embedder Embedder
	source   CandidateSource
	cache    QueryVectorCache
	cacheTTL time.Duration

	topK      int
	pdfPrefix string

	logger zerolog.Logger
	tracer trace.Tracer
}

// NewSearchService 创建检索服务
func NewSearchService(embedder Embedder, source CandidateSource, opts ...SearchOption) (*SearchService, error) {
	if embedder == nil || source == nil {
		return nil, fmt.Errorf("%w: embedder 与 source 不能为空", ErrInvalidInput)
	}
	s := &SearchService{
		embedder:  embedder,
		source:    source,
		topK:      constants.DefaultTopK,
		pdfPrefix: constants.DefaultPDFRoutePrefix,
		logger:    appLogger.Component("search"),
		tracer:    otel.Tracer("resume-search/processor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search 返回与岗位描述最相似的 topK 份简历。
//
// 查询文本不做归一化，按原样向量化。结果按相似度从低到高排列，最相似的在最后；
// score = (1 - 余弦相似度) * 100，越小越相似。
func (s *SearchService) Search(ctx context.Context, jobDescription string) (*types.SearchResponse, error) {
	ctx, span := s.tracer.Start(ctx, "SearchService.Search",
		trace.WithAttributes(attribute.String("search.query", tracing.SafeQuery(jobDescription))))
	defer span.End()

	// 只拒绝空串，纯空白文本照常向量化
	if jobDescription == "" {
		return nil, fmt.Errorf("%w: job_description 不能为空", ErrInvalidInput)
	}

	candidates, err := s.source.FetchAllProcessed(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no processed resumes found", ErrNotFound)
	}

	query, err := s.queryVector(ctx, jobDescription)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	ranked, err := ranker.Rank(query, toCandidates(candidates), s.topK)
	if err != nil {
		if errors.Is(err, ranker.ErrDimensionMismatch) {
			err = fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	results := make([]types.QueryResult, 0, len(ranked))
	for _, r := range ranker.ReverseForDisplay(ranked) {
		name := filepath.Base(r.Payload.FilePath)
		results = append(results, types.QueryResult{
			Filename: name,
			Text:     r.Payload.NormalizedText,
			Score:    r.Score,
			FilePath: s.pdfPrefix + "/" + url.PathEscape(name),
		})
	}

	span.SetAttributes(
		attribute.Int("search.candidates", len(candidates)),
		attribute.Int("search.results", len(results)),
	)
	s.logger.Debug().Int("candidates", len(candidates)).Int("results", len(results)).Msg("检索完成")
	return &types.SearchResponse{Query: jobDescription, Results: results}, nil
}

// queryVector 先查缓存，未命中再调用 embedder 并回写缓存；缓存故障不影响检索
func (s *SearchService) queryVector(ctx context.Context, query string) ([]float64, error) {
	model := s.embedder.Model()
	if s.cache != nil {
		vec, err := s.cache.GetQueryVector(ctx, model, query)
		if err == nil && len(vec) > 0 {
			s.logger.Debug().Str("model", model).Msg("查询向量缓存命中")
			return vec, nil
		}
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: 查询向量为空", ErrEmbedding)
	}
	vec := vectors[0]

	if s.cache != nil {
		if err := s.cache.SetQueryVector(ctx, model, query, vec, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("写入查询向量缓存失败")
		}
	}
	return vec, nil
}

func toCandidates(resumes []types.IndexedResume) []ranker.Candidate[types.IndexedResume] {
	out := make([]ranker.Candidate[types.IndexedResume], len(resumes))
	for i, r := range resumes {
		out[i] = ranker.Candidate[types.IndexedResume]{ID: r.ID, Vector: r.Embedding, Payload: r}
	}
	return out
}
