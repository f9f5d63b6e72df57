// Package outbox 把与简历状态同一事务写入的 outbox_messages 异步发布到 RabbitMQ
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	appLogger "resume-search/internal/logger"
	"resume-search/internal/storage/models"
	"resume-search/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

// Publisher 消息发布器，*storage.RabbitMQ 满足该接口
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// Option 配置 MessageRelay
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每次轮询的批量大小
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	tracer          trace.Tracer

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewMessageRelay 创建一个新的 MessageRelay 实例
func NewMessageRelay(db *gorm.DB, publisher Publisher, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          appLogger.Component("outbox-relay"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		tracer:          otel.Tracer("outbox-relay"),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 在后台开始轮询，ctx 取消或调用 Stop 时退出
func (r *MessageRelay) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("MessageRelay stopped (context done)")
				return
			case <-r.done:
				r.logger.Info().Msg("MessageRelay stopped")
				return
			case <-ticker.C:
				if _, err := r.processPendingMessages(ctx); err != nil {
					r.logger.Error().Err(err).Msg("处理 outbox 消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

// Flush 反复处理直到没有待发布消息，返回成功发布的条数。
// 发布失败的消息留待后续轮询重试。
func (r *MessageRelay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		sent, fetched, err := r.processBatch(ctx)
		total += sent
		if err != nil {
			return total, err
		}
		if fetched < r.batchSize || sent == 0 {
			return total, nil
		}
	}
}

func (r *MessageRelay) processPendingMessages(ctx context.Context) (int, error) {
	sent, _, err := r.processBatch(ctx)
	return sent, err
}

// processBatch 锁定一批 PENDING 消息并逐条发布，返回 (发布成功数, 取到的消息数)
func (r *MessageRelay) processBatch(ctx context.Context) (int, int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, 0, tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 让多个实例可以并行中继而不重复发布
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, 0, fmt.Errorf("查询待发布 outbox 消息失败: %w", err)
	}

	// 空轮询不创建 span
	if len(messages) == 0 {
		return 0, 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))))
	defer span.End()

	r.logger.Debug().Int("count", len(messages)).Msg("获取到待发布消息")

	sent := 0
	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			gaveUp := msg.MarkAttemptFailed(err, maxRetryCount)
			tracing.RecordPublishFailure(span, err, msg.ID, msg.RetryCount)
			r.logger.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retry", msg.RetryCount).
				Bool("gave_up", gaveUp).
				Msg("发布 outbox 消息失败")
		} else {
			msg.MarkSent(time.Now())
			sent++
		}

		// 更新失败则整批回滚，下次轮询重新拾取
		if err := tx.Save(msg).Error; err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return 0, len(messages), fmt.Errorf("更新 outbox 消息 %d 失败: %w", msg.ID, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, len(messages), err
	}
	r.logger.Info().Int("sent", sent).Int("fetched", len(messages)).Msg("outbox 批次处理完成")
	return sent, len(messages), nil
}
