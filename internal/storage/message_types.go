package storage

import "time"

// ResumeProcessedEvent 简历处理完成事件，经 outbox 发布到 resume_events_exchange
type ResumeProcessedEvent struct {
	ResumeID         uint64    `json:"resume_id"`
	ResumeUUID       string    `json:"resume_uuid"`
	FilePath         string    `json:"file_path"`
	EmbeddingModel   string    `json:"embedding_model"`
	Dimensions       int       `json:"dimensions"`
	RawTextObjectKey string    `json:"raw_text_object_key,omitempty"`
	ProcessedAt      time.Time `json:"processed_at"`
}
