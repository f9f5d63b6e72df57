package types

import "time"

// PendingResume 待处理的简历记录
type PendingResume struct {
	ID         uint64
	ResumeUUID string
	FilePath   string
}

// IndexedResume 已处理、可参与检索的简历
type IndexedResume struct {
	ID             uint64
	ResumeUUID     string
	FilePath       string
	NormalizedText string
	Embedding      []float64
	CreatedAt      time.Time
}

// ProcessedResume 一次处理产出的结果，由 MarkProcessed 原子写入
type ProcessedResume struct {
	ID               uint64
	ResumeUUID       string
	FilePath         string
	RawText          string
	NormalizedText   string
	Embedding        []float64
	EmbeddingModel   string
	RawTextObjectKey string
}

// QueryResult 单条检索结果
//
// Score 为 (1 - 余弦相似度) * 100，保留两位小数：数值越小越相似，范围 [0, 200]。
type QueryResult struct {
	Filename string  `json:"filename"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	FilePath string  `json:"file_path"`
}

// SearchResponse /search 的响应体，Results 按最差到最好排列（最相似的在最后）
type SearchResponse struct {
	Query   string        `json:"query"`
	Results []QueryResult `json:"results"`
}

// IngestReport 一次入库运行的统计
type IngestReport struct {
	Discovered int `json:"discovered"` // 新插入的记录数
	Pending    int `json:"pending"`    // 本次尝试处理的记录数
	Processed  int `json:"processed"`  // 成功标记为已处理
	Skipped    int `json:"skipped"`    // 提取失败或文本为空
	Failed     int `json:"failed"`     // 向量化失败，下次重试
}
