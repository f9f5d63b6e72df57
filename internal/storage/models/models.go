package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/datatypes"
)

// resumeNamespace 用于从文件路径派生稳定的 ResumeUUID
var resumeNamespace = uuid.Must(uuid.FromString("6f1c1b1e-3a8d-5c4e-9b0a-2d7e4f5a6b7c"))

// Resume 简历记录表
//
// Processed 为 true 时 NormalizedText 与 Embedding 一定非空，三者在同一条 UPDATE 中写入。
type Resume struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement"`
	ResumeUUID       string         `gorm:"type:char(36);not null;uniqueIndex:idx_resumes_uuid"`
	FilePath         string         `gorm:"type:varchar(768);not null;uniqueIndex:idx_resumes_file_path"`
	RawText          *string        `gorm:"type:longtext"`
	NormalizedText   *string        `gorm:"type:longtext"`
	Embedding        datatypes.JSON `gorm:"type:json"`
	EmbeddingModel   string         `gorm:"type:varchar(100)"`
	RawTextObjectKey string         `gorm:"type:varchar(255)"`
	Processed        bool           `gorm:"not null;default:false;index:idx_resumes_processed"`
	ProcessedAt      *time.Time     `gorm:"type:datetime(6)"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Resume) TableName() string {
	return "resumes"
}

// NewResume 创建一条未处理的简历记录
func NewResume(filePath string) *Resume {
	return &Resume{
		ResumeUUID: ResumeUUIDForPath(filePath),
		FilePath:   filePath,
	}
}

// ResumeUUIDForPath 同一路径总是得到同一个 UUID (v5)
func ResumeUUIDForPath(filePath string) string {
	return uuid.NewV5(resumeNamespace, filePath).String()
}

// EncodeEmbedding 向量序列化为 JSON 数组
func EncodeEmbedding(vector []float64) (datatypes.JSON, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("向量不能为空")
	}
	for i, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("向量第 %d 维不是有限数值", i)
		}
	}
	b, err := json.Marshal(vector)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// DecodeEmbedding 反序列化向量，空值返回 nil
func DecodeEmbedding(raw datatypes.JSON) ([]float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var vector []float64
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, fmt.Errorf("解析向量失败: %w", err)
	}
	return vector, nil
}
