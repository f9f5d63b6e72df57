package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "resume-search"

	// SearchModulePrefix 检索模块
	SearchModulePrefix = "search"
	// IngestModulePrefix 入库模块
	IngestModulePrefix = "ingest"

	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyQueryVector 查询文本向量缓存 (HASH: vector, model)
	// 格式: resume-search:search:vector:{sha256(model|query)}
	KeyQueryVector = AppPrefix + ":" + SearchModulePrefix + ":" + EntityVector + ":%s"

	// KeyIngestLock 入库任务分布式锁 (STRING)
	// 格式: resume-search:ingest:lock:{root}
	KeyIngestLock = AppPrefix + ":" + IngestModulePrefix + ":" + EntityLock + ":%s"
)
