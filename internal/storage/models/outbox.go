package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox 消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 待发布的领域事件，与 resumes 的 processed 翻转在同一事务中写入
type OutboxMessage struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	AggregateID string         `gorm:"column:aggregate_id;type:varchar(36);not null;index"` // resume_uuid
	EventType   string         `gorm:"column:event_type;type:varchar(64);not null"`
	Payload     datatypes.JSON `gorm:"column:payload;not null"`

	TargetExchange   string `gorm:"column:target_exchange;type:varchar(255);not null"`
	TargetRoutingKey string `gorm:"column:target_routing_key;type:varchar(255);not null"`

	Status       string     `gorm:"column:status;type:varchar(16);default:'PENDING';not null;index:idx_outbox_status_created,priority:1"`
	RetryCount   int        `gorm:"column:retry_count;default:0"`
	ErrorMessage string     `gorm:"column:error_message;type:text"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:datetime(6);index:idx_outbox_status_created,priority:2"`
	ProcessedAt  *time.Time `gorm:"column:processed_at;type:datetime(6)"`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }

// MarkSent 标记已发布并清除上次的错误
func (m *OutboxMessage) MarkSent(at time.Time) {
	m.Status = OutboxStatusSent
	m.ProcessedAt = &at
	m.ErrorMessage = ""
}

// MarkAttemptFailed 记录一次发布失败，重试次数达到 maxRetries 时置为 FAILED 并返回 true
func (m *OutboxMessage) MarkAttemptFailed(err error, maxRetries int) bool {
	m.RetryCount++
	m.ErrorMessage = err.Error()
	if m.RetryCount >= maxRetries {
		m.Status = OutboxStatusFailed
		return true
	}
	return false
}
