package storage

import (
	"context"
	"fmt"

	"resume-search/internal/config"
	appLogger "resume-search/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库，简历表与 outbox 表
	MySQL *MySQL

	// 查询向量缓存与入库锁，可选
	Redis *Redis

	// 原始文本归档，可选
	MinIO *MinIO

	// 事件发布，可选
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器。MySQL 必需，其余组件未配置时跳过，初始化失败时降级并告警
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := appLogger.Component("storage")

	s := &Storage{}
	var err error

	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	if cfg.RabbitMQ.URL != "" && cfg.RabbitMQ.ResumeEventsExchange != "" {
		s.MySQL.WithOutbox(cfg.RabbitMQ.ResumeEventsExchange, cfg.RabbitMQ.ProcessedRoutingKey)
	}

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("初始化Redis失败，查询缓存与入库锁已禁用")
			s.Redis = nil
		}
	} else {
		log.Info().Msg("Redis未配置, 跳过初始化")
	}

	if cfg.MinIO.Endpoint != "" {
		s.MinIO, err = NewMinIO(ctx, &cfg.MinIO)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.MinIO.Endpoint).Msg("初始化MinIO失败，原始文本不归档")
			s.MinIO = nil
		}
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			// outbox 消息仍会落库，RabbitMQ 恢复后由 relay 补发
			log.Warn().Err(err).Msg("初始化RabbitMQ失败")
			s.RabbitMQ = nil
		}
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := appLogger.Component("storage")
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
}
