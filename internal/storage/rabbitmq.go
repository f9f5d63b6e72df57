package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resume-search/internal/config"
	appLogger "resume-search/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RabbitMQ 发布 resume.processed 事件
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	cfg         *config.RabbitMQConfig
	logger      zerolog.Logger

	mu         sync.Mutex
	declared   map[string]bool // exchange:/queue:/binding: 前缀区分
	publishMux sync.Mutex
}

// NewRabbitMQ 连接 RabbitMQ 并声明事件交换机（以及可选的队列绑定）
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		cfg:      cfg,
		logger:   appLogger.Component("rabbitmq"),
		declared: make(map[string]bool),
	}
	mq.channelPool = sync.Pool{
		New: func() any {
			ch, err := conn.Channel()
			if err != nil {
				mq.logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}

	if cfg.ResumeEventsExchange != "" {
		if err := mq.EnsureExchange(cfg.ResumeEventsExchange, amqp.ExchangeTopic, true); err != nil {
			conn.Close()
			return nil, err
		}
		if cfg.ProcessedQueue != "" {
			if err := mq.EnsureQueue(cfg.ProcessedQueue, true); err != nil {
				conn.Close()
				return nil, err
			}
			if err := mq.BindQueue(cfg.ProcessedQueue, cfg.ResumeEventsExchange, cfg.ProcessedRoutingKey); err != nil {
				conn.Close()
				return nil, err
			}
		}
	}

	mq.logger.Info().Str("exchange", cfg.ResumeEventsExchange).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

func (r *RabbitMQ) getChannel() (*amqp.Channel, error) {
	if v := r.channelPool.Get(); v != nil {
		if ch, ok := v.(*amqp.Channel); ok && !ch.IsClosed() {
			return ch, nil
		}
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	return ch, nil
}

func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

func (r *RabbitMQ) once(key string, declare func(ch *amqp.Channel) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[key] {
		return nil
	}

	ch, err := r.getChannel()
	if err != nil {
		return err
	}
	if err := declare(ch); err != nil {
		// 声明失败后通道会被服务端关闭，不放回池中
		return err
	}
	r.putChannel(ch)
	r.declared[key] = true
	return nil
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	return r.once("exchange:"+exchangeName, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(exchangeName, exchangeType, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明exchange失败: %w", err)
		}
		r.logger.Debug().Str("exchange", exchangeName).Msg("已确保exchange存在")
		return nil
	})
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	return r.once("queue:"+queueName, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queueName, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明队列失败: %w", err)
		}
		return nil
	})
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	return r.once(fmt.Sprintf("binding:%s:%s:%s", exchangeName, queueName, routingKey), func(ch *amqp.Channel) error {
		if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
			return fmt.Errorf("绑定队列到exchange失败: %w", err)
		}
		return nil
	})
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMux.Lock()
	defer r.publishMux.Unlock()

	ch, err := r.getChannel()
	if err != nil {
		return err
	}

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	err = ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
		Body:         message,
		Timestamp:    time.Now(),
	})
	r.putChannel(ch)
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

// Consume 消费队列直到 ctx 取消；handler 返回 false 时消息重新入队
func (r *RabbitMQ) Consume(ctx context.Context, queueName string, prefetchCount int, handler func([]byte) bool) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("设置QoS失败: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("注册消费者失败: %w", err)
	}

	r.logger.Info().Str("queue", queueName).Int("prefetch", prefetchCount).Msg("RabbitMQ消费者已启动")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("RabbitMQ通道已关闭")
			}
			if handler(d.Body) {
				if err := d.Ack(false); err != nil {
					r.logger.Warn().Err(err).Msg("确认消息失败")
				}
			} else if err := d.Nack(false, true); err != nil {
				r.logger.Warn().Err(err).Msg("拒绝消息失败")
			}
		}
	}
}
