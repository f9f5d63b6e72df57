package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resume-search/internal/config"
	"resume-search/internal/constants"
	appLogger "resume-search/internal/logger"
	"resume-search/internal/storage/models"
	"resume-search/internal/tracing"
	"resume-search/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("resume-search/storage/mysql")

// ErrNotPending MarkProcessed 命中的记录不存在或已处理
var ErrNotPending = errors.New("resume is not pending")

type spanCtxKey struct{}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{tracer: mysqlTracer, dbName: dbName}
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// callbackRegistrar gorm 回调链上 Before/After 返回值的公共方法
type callbackRegistrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op, name      string
		before, after callbackRegistrar
	}{
		{"CREATE", "create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")},
		{"SELECT", "query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")},
		{"UPDATE", "update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")},
		{"DELETE", "delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")},
		{"ROW", "row", cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")},
		{"RAW", "raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")},
	}
	for _, h := range hooks {
		if err := h.before.Register("otel:before_"+h.name, p.before(h.op)); err != nil {
			return err
		}
		if err := h.after.Register("otel:after_"+h.name, p.after); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, operation+" "+tableName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, spanCtxKey{}, span)
	}
}

func (p *GormTracingPlugin) after(db *gorm.DB) {
	span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if sql := db.Statement.SQL.String(); sql != "" {
		span.SetAttributes(attribute.String("db.statement", tracing.TruncateString(sql, tracing.MaxStatementLength)))
	}

	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		// 未找到记录属于正常业务分支
		span.SetAttributes(attribute.String("error.type", "record_not_found"))
	default:
		tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
	}
}

// MySQL 简历记录存储
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig

	// 非空时 MarkProcessed 在同一事务中写入 outbox 消息
	outboxExchange   string
	outboxRoutingKey string
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(gormLogLevel(cfg.LogLevel)),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	appLogger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("成功连接到MySQL")
	return &MySQL{db: db, cfg: cfg}, nil
}

// NewMySQLWithDB 基于已有的 gorm 连接创建存储，便于测试
func NewMySQLWithDB(db *gorm.DB) *MySQL {
	return &MySQL{db: db, cfg: &config.MySQLConfig{}}
}

// WithOutbox 设置 resume.processed 事件的目标交换机与路由键
func (m *MySQL) WithOutbox(exchange, routingKey string) *MySQL {
	m.outboxExchange = exchange
	m.outboxRoutingKey = routingKey
	return m
}

// newGormLogger GORM 日志输出到全局 zerolog
func newGormLogger(level logger.LogLevel) logger.Interface {
	return logger.New(&appLogger.Logger, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func gormLogLevel(level int) logger.LogLevel {
	switch level {
	case 1:
		return logger.Silent
	case 2:
		return logger.Error
	case 3:
		return logger.Warn
	case 4:
		return logger.Info
	default:
		return logger.Warn
	}
}

// AutoMigrate 创建或更新 resumes 与 outbox_messages 表
func (m *MySQL) AutoMigrate(ctx context.Context) error {
	err := m.db.WithContext(ctx).Session(&gorm.Session{Logger: newGormLogger(logger.Silent)}).AutoMigrate(
		&models.Resume{},
		&models.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	appLogger.Info().Msg("数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Ping 检查连接可用
func (m *MySQL) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// InsertIfAbsent 路径不存在时插入一条未处理记录，返回是否发生了插入
func (m *MySQL) InsertIfAbsent(ctx context.Context, filePath string) (bool, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.InsertIfAbsent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	result := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.NewResume(filePath))
	if result.Error != nil {
		tracing.RecordError(span, result.Error, tracing.ErrorTypeDB)
		return false, fmt.Errorf("插入简历记录失败 (%s): %w", filePath, result.Error)
	}

	inserted := result.RowsAffected == 1
	span.SetAttributes(attribute.Bool("resume.inserted", inserted))
	return inserted, nil
}

// FetchUnprocessed 返回所有未处理的记录，按 id 升序
func (m *MySQL) FetchUnprocessed(ctx context.Context) ([]types.PendingResume, error) {
	var rows []models.Resume
	err := m.db.WithContext(ctx).
		Select("id", "resume_uuid", "file_path").
		Where("processed = ?", false).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询未处理简历失败: %w", err)
	}

	pending := make([]types.PendingResume, len(rows))
	for i, r := range rows {
		pending[i] = types.PendingResume{ID: r.ID, ResumeUUID: r.ResumeUUID, FilePath: r.FilePath}
	}
	return pending, nil
}

// MarkProcessed 在一个事务中写入文本、向量与 processed=true，并追加 outbox 消息。
// 记录已处理或不存在时返回 ErrNotPending，不做任何修改。
func (m *MySQL) MarkProcessed(ctx context.Context, p types.ProcessedResume) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.MarkProcessed",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("resume.id", int64(p.ID))))
	defer span.End()

	embeddingJSON, err := models.EncodeEmbedding(p.Embedding)
	if err != nil {
		return fmt.Errorf("编码向量失败 (id=%d): %w", p.ID, err)
	}

	now := time.Now()
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Resume{}).
			Where("id = ? AND processed = ?", p.ID, false).
			Updates(map[string]any{
				"raw_text":            p.RawText,
				"normalized_text":     p.NormalizedText,
				"embedding":           embeddingJSON,
				"embedding_model":     p.EmbeddingModel,
				"raw_text_object_key": p.RawTextObjectKey,
				"processed":           true,
				"processed_at":        &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotPending
		}

		if m.outboxExchange == "" {
			return nil
		}
		payload, err := json.Marshal(ResumeProcessedEvent{
			ResumeID:         p.ID,
			ResumeUUID:       p.ResumeUUID,
			FilePath:         p.FilePath,
			EmbeddingModel:   p.EmbeddingModel,
			Dimensions:       len(p.Embedding),
			RawTextObjectKey: p.RawTextObjectKey,
			ProcessedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("序列化事件失败: %w", err)
		}
		return tx.Create(&models.OutboxMessage{
			AggregateID:      p.ResumeUUID,
			EventType:        constants.EventResumeProcessed,
			Payload:          payload,
			TargetExchange:   m.outboxExchange,
			TargetRoutingKey: m.outboxRoutingKey,
			Status:           models.OutboxStatusPending,
		}).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotPending) {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
		}
		return fmt.Errorf("标记简历已处理失败 (id=%d): %w", p.ID, err)
	}
	return nil
}

// FetchAllProcessed 返回检索候选集：processed=true 且向量非空。
// 向量无法解析的记录会被跳过并记录告警。
func (m *MySQL) FetchAllProcessed(ctx context.Context) ([]types.IndexedResume, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.FetchAllProcessed", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var rows []models.Resume
	err := m.db.WithContext(ctx).
		Select("id", "resume_uuid", "file_path", "normalized_text", "embedding", "created_at").
		Where("processed = ? AND embedding IS NOT NULL", true).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("查询已处理简历失败: %w", err)
	}

	indexed := make([]types.IndexedResume, 0, len(rows))
	for _, r := range rows {
		vector, err := models.DecodeEmbedding(r.Embedding)
		if err != nil || len(vector) == 0 || r.NormalizedText == nil {
			appLogger.Warn().Err(err).Uint64("id", r.ID).Str("path", r.FilePath).Msg("跳过向量无效的已处理简历")
			continue
		}
		indexed = append(indexed, types.IndexedResume{
			ID:             r.ID,
			ResumeUUID:     r.ResumeUUID,
			FilePath:       r.FilePath,
			NormalizedText: *r.NormalizedText,
			Embedding:      vector,
			CreatedAt:      r.CreatedAt,
		})
	}
	span.SetAttributes(attribute.Int("resume.candidates", len(indexed)))
	return indexed, nil
}

// CountResumes 返回总记录数与已处理记录数
func (m *MySQL) CountResumes(ctx context.Context) (total int64, processed int64, err error) {
	db := m.db.WithContext(ctx).Model(&models.Resume{})
	if err = db.Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("统计简历数量失败: %w", err)
	}
	if err = m.db.WithContext(ctx).Model(&models.Resume{}).Where("processed = ?", true).Count(&processed).Error; err != nil {
		return 0, 0, fmt.Errorf("统计已处理简历数量失败: %w", err)
	}
	return total, processed, nil
}
