package parser

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"resume-search/internal/config"
	"resume-search/internal/logger"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// 确保 OpenAIEmbedder 实现 eino 的 embedding.Embedder 接口
var _ embedding.Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder 通过 OpenAI 兼容的 /embeddings 接口生成向量
// (TEI、Ollama、vLLM 等都可以托管 all-MiniLM-L6-v2)
type OpenAIEmbedder struct {
	client         *openai.Client
	model          string
	dimensions     int
	sendDimensions bool
	limiter        *rate.Limiter
	logger         zerolog.Logger
	clientOpts     []option.RequestOption
}

// OpenAIEmbedderOption 配置选项
type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithEmbedderLogger 配置日志记录器
func WithEmbedderLogger(l zerolog.Logger) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.logger = l
	}
}

// WithRequestDimensions 在请求中携带 dimensions 参数，仅支持可变维度的模型需要开启
func WithRequestDimensions(enabled bool) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.sendDimensions = enabled
	}
}

// WithClientOptions 追加 openai-go 请求选项，测试中用于指向本地服务
func WithClientOptions(opts ...option.RequestOption) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		c := openai.NewClient(append(slices.Clone(e.clientOpts), opts...)...)
		e.client = &c
	}
}

// NewOpenAIEmbedder 创建向量生成器，进程内只应创建一次
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, opts ...OpenAIEmbedderOption) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding.model 不能为空")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding.dimensions 必须大于0")
	}

	e := &OpenAIEmbedder{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger.Component("embedder"),
	}
	if cfg.QPM > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.QPM)), 1)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(2)}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	client := openai.NewClient(clientOpts...)
	e.client = &client
	e.clientOpts = clientOpts

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Model 返回模型名，随向量一起持久化
func (e *OpenAIEmbedder) Model() string { return e.model }

// Dimensions 返回模型的固定维度
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// EmbedStrings 批量生成向量，返回顺序与输入一致
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待限流令牌失败: %w", err)
		}
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.sendDimensions {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("调用向量接口失败: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("向量接口返回数量不一致: 期望 %d, 实际 %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float64, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}

	e.logger.Debug().
		Int("texts", len(texts)).
		Int("dim", len(vectors[0])).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Dur("took", time.Since(start)).
		Msg("向量生成完成")
	return vectors, nil
}
