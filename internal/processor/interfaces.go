package processor

import (
	"context"
	"time"

	"resume-search/internal/types"

	"github.com/cloudwego/eino/components/embedding"
)

//
// 解析与向量化
//

// TextExtractor 从文件提取纯文本；失败时返回空字符串并自行记录日志
type TextExtractor interface {
	Extract(ctx context.Context, filePath string) string
}

// Embedder 文本向量化接口 (符合 cloudwego/eino 规范)，并暴露模型名与固定维度
type Embedder interface {
	embedding.Embedder

	// Model 向量模型名称，参与查询缓存键
	Model() string

	// Dimensions 模型输出的向量维度，<=0 表示不校验
	Dimensions() int
}

//
// 存储
//

// ResumeStore 入库流水线使用的简历记录存储
type ResumeStore interface {
	// InsertIfAbsent 路径不存在时插入未处理记录，返回是否插入
	InsertIfAbsent(ctx context.Context, filePath string) (bool, error)

	// FetchUnprocessed 返回所有未处理的记录
	FetchUnprocessed(ctx context.Context) ([]types.PendingResume, error)

	// MarkProcessed 原子写入文本、向量与 processed=true
	MarkProcessed(ctx context.Context, resume types.ProcessedResume) error
}

// CandidateSource 检索候选集来源
type CandidateSource interface {
	FetchAllProcessed(ctx context.Context) ([]types.IndexedResume, error)
}

// RawTextArchiver 原始文本归档，返回对象键
type RawTextArchiver interface {
	UploadRawText(ctx context.Context, resumeUUID string, text string) (string, error)
}

// QueryVectorCache 查询向量缓存，未命中时返回错误
type QueryVectorCache interface {
	GetQueryVector(ctx context.Context, model, query string) ([]float64, error)
	SetQueryVector(ctx context.Context, model, query string, vector []float64, ttl time.Duration) error
}

// RunLocker 入库任务互斥锁，未获取到时返回空字符串
type RunLocker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}
