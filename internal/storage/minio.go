package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"resume-search/internal/config"
	appLogger "resume-search/internal/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
)

const defaultRegion = "us-east-1"

// MinIO 归档每份简历提取出的原始文本
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 不能为空")
	}

	l := appLogger.Component("minio")
	if !cfg.EnableLogging {
		l = l.Level(zerolog.WarnLevel)
	}

	region := cfg.Location
	if region == "" {
		region = defaultRegion
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.RawTextBucket
	if bucket == "" {
		bucket = "resume-raw-text"
	}
	m := &MinIO{client: client, cfg: cfg, bucket: bucket, logger: l}

	if err := m.ensureBucketExists(ctx, region); err != nil {
		return nil, err
	}
	if cfg.RawTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, cfg.RawTextExpireDays); err != nil {
			m.logger.Warn().Err(err).Str("bucket", bucket).Msg("设置生命周期规则失败")
		}
	}

	m.logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		m.logger.Debug().Str("bucket", m.bucket).Msg("存储桶已存在")
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.logger.Info().Str("bucket", m.bucket).Msg("存储桶创建成功")
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:         "expire-raw-text",
			Status:     "Enabled",
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(expiryDays)},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, cfg)
}

// Bucket 返回归档使用的存储桶
func (m *MinIO) Bucket() string { return m.bucket }

// RawTextObjectKey 原始文本的对象键
func RawTextObjectKey(resumeUUID string) string {
	return fmt.Sprintf("resume/%s/raw_text.txt", resumeUUID)
}

// UploadRawText 上传原始文本，返回对象键 (不含bucket前缀)
func (m *MinIO) UploadRawText(ctx context.Context, resumeUUID string, text string) (string, error) {
	objectName := RawTextObjectKey(resumeUUID)
	_, err := m.client.PutObject(ctx, m.bucket, objectName, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("上传原始文本 %s 到存储桶 %s 失败: %w", objectName, m.bucket, err)
	}
	m.logger.Debug().Str("object", objectName).Int("bytes", len(text)).Msg("原始文本已归档")
	return objectName, nil
}

// GetRawText 读取归档的原始文本
func (m *MinIO) GetRawText(ctx context.Context, objectName string) (string, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("获取对象 %s 失败: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("读取对象 %s 失败: %w", objectName, err)
	}
	return string(data), nil
}
