package constants

import "time"

const (
	// DefaultTopK 每次检索返回的简历数量
	DefaultTopK = 5

	// DefaultPDFRoutePrefix 结果中 file_path 使用的路由前缀
	DefaultPDFRoutePrefix = "/pdfs"

	// DefaultQueryVectorTTL 查询向量缓存时间
	DefaultQueryVectorTTL = 10 * time.Minute

	// DefaultIngestLockTTL 入库任务锁过期时间
	DefaultIngestLockTTL = 30 * time.Minute

	// EventResumeProcessed 简历处理完成事件类型
	EventResumeProcessed = "resume.processed"
)
