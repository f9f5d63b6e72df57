package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-search/internal/constants"
	appLogger "resume-search/internal/logger"
	"resume-search/internal/parser"
	"resume-search/internal/storage"
	"resume-search/internal/tracing"
	"resume-search/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBatchSize = 16

// IngestOption 配置 IngestPipeline
type IngestOption func(*IngestPipeline)

// WithExtensions 设置识别的文件扩展名，大小写不敏感
func WithExtensions(exts ...string) IngestOption {
	return func(p *IngestPipeline) {
		if len(exts) == 0 {
			return
		}
		p.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			p.extensions[ext] = struct{}{}
		}
	}
}

// WithBatchSize 设置每次向量化的简历数量
func WithBatchSize(n int) IngestOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithArchiver 处理成功的简历原始文本归档到对象存储
func WithArchiver(a RawTextArchiver) IngestOption {
	return func(p *IngestPipeline) { p.archiver = a }
}

// WithRunLocker 使用分布式锁保证同一根目录只有一个入库任务
func WithRunLocker(l RunLocker, ttl time.Duration) IngestOption {
	return func(p *IngestPipeline) {
		p.locker = l
		if ttl > 0 {
			p.lockTTL = ttl
		}
	}
}

// WithIngestLogger 设置日志记录器
func WithIngestLogger(l zerolog.Logger) IngestOption {
	return func(p *IngestPipeline) { p.logger = l }
}

// IngestPipeline 发现简历文件并把未处理的记录转为已处理。
// 单份简历的提取、归一化、向量化都在内存中完成，最后一次写入翻转 processed。
type IngestPipeline struct {
	root       string
	extensions map[string]struct{}
	batchSize  int

	extractor TextExtractor
	embedder  Embedder
	store     ResumeStore
	archiver  RawTextArchiver
	locker    RunLocker
	lockTTL   time.Duration

	logger zerolog.Logger
	tracer trace.Tracer
}

// NewIngestPipeline 创建入库流水线，root 会被转为绝对路径
func NewIngestPipeline(root string, extractor TextExtractor, embedder Embedder, store ResumeStore, opts ...IngestOption) (*IngestPipeline, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: 简历根目录不能为空", ErrInvalidInput)
	}
	if extractor == nil || embedder == nil || store == nil {
		return nil, fmt.Errorf("%w: extractor、embedder 与 store 不能为空", ErrInvalidInput)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析简历根目录失败: %w", err)
	}

	p := &IngestPipeline{
		root:       absRoot,
		extensions: map[string]struct{}{".pdf": {}},
		batchSize:  defaultBatchSize,
		extractor:  extractor,
		embedder:   embedder,
		store:      store,
		lockTTL:    constants.DefaultIngestLockTTL,
		logger:     appLogger.Component("ingest"),
		tracer:     otel.Tracer("resume-search/processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Root 返回简历根目录的绝对路径
func (p *IngestPipeline) Root() string { return p.root }

// Matches 判断文件扩展名是否被识别
func (p *IngestPipeline) Matches(path string) bool {
	_, ok := p.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Discover 递归扫描根目录，为新文件插入未处理记录，返回新插入的数量。
// 符号链接不跟随；无法读取的子目录记录告警后跳过。
func (p *IngestPipeline) Discover(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "IngestPipeline.Discover",
		trace.WithAttributes(attribute.String("ingest.root", p.root)))
	defer span.End()

	info, err := os.Stat(p.root)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return 0, fmt.Errorf("%w: 简历根目录不可用 %s: %v", ErrNotFound, p.root, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: 简历根目录不是目录: %s", ErrInvalidInput, p.root)
	}

	inserted, seen := 0, 0
	walkErr := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.logger.Warn().Err(err).Str("path", path).Msg("扫描目录出错，已跳过")
			if d != nil && d.IsDir() && path != p.root {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if !p.Matches(path) {
			return nil
		}
		seen++

		ok, err := p.store.InsertIfAbsent(ctx, path)
		if err != nil {
			return NewStorageError(0, path, err)
		}
		if ok {
			inserted++
			p.logger.Debug().Str("path", path).Msg("发现新简历")
		}
		return nil
	})
	if walkErr != nil {
		tracing.RecordError(span, walkErr, tracing.ErrorTypeDB)
		return inserted, walkErr
	}

	span.SetAttributes(attribute.Int("ingest.seen", seen), attribute.Int("ingest.inserted", inserted))
	p.logger.Info().Int("seen", seen).Int("inserted", inserted).Str("root", p.root).Msg("简历发现完成")
	return inserted, nil
}

// ProcessPending 处理所有未处理记录。
// 提取失败或提取文本为空白计为 Skipped，向量化失败计为 Failed，两者都留待下次运行重试。
// 存储错误与维度不一致会中止本次运行。
func (p *IngestPipeline) ProcessPending(ctx context.Context) (types.IngestReport, error) {
	ctx, span := p.tracer.Start(ctx, "IngestPipeline.ProcessPending")
	defer span.End()

	var report types.IngestReport
	pending, err := p.store.FetchUnprocessed(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return report, NewStorageError(0, "", err)
	}
	report.Pending = len(pending)
	span.SetAttributes(attribute.Int("ingest.pending", len(pending)))

	if len(pending) == 0 {
		p.logger.Info().Msg("All resumes already processed")
		return report, nil
	}
	p.logger.Info().Int("pending", len(pending)).Int("batch_size", p.batchSize).Msg("开始处理未处理简历")

	done := 0
	for start := 0; start < len(pending); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+p.batchSize, len(pending))
		if err := p.processBatch(ctx, pending[start:end], &report, &done, len(pending)); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
			return report, err
		}
	}

	span.SetAttributes(
		attribute.Int("ingest.processed", report.Processed),
		attribute.Int("ingest.skipped", report.Skipped),
		attribute.Int("ingest.failed", report.Failed),
	)
	p.logger.Info().
		Int("processed", report.Processed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("简历处理完成")
	return report, nil
}

type extracted struct {
	resume     types.PendingResume
	raw        string
	normalized string
}

func (p *IngestPipeline) processBatch(ctx context.Context, batch []types.PendingResume, report *types.IngestReport, done *int, total int) error {
	items := make([]extracted, 0, len(batch))
	for _, r := range batch {
		raw := p.extractor.Extract(ctx, r.FilePath)
		if strings.TrimSpace(raw) == "" {
			report.Skipped++
			*done++
			p.logger.Warn().
				Err(NewExtractionError(r.ID, r.FilePath, "文本为空")).
				Str("progress", fmt.Sprintf("%d/%d", *done, total)).
				Msg("跳过简历，下次运行重试")
			continue
		}
		// 归一化后可能为空（如全中文简历），仍然向量化并标记为已处理
		items = append(items, extracted{resume: r, raw: raw, normalized: parser.Normalize(raw)})
	}
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.normalized
	}
	vectors, err := p.embedder.EmbedStrings(ctx, texts)
	if err == nil && len(vectors) != len(items) {
		err = fmt.Errorf("向量数量不一致: 期望 %d, 实际 %d", len(items), len(vectors))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		report.Failed += len(items)
		*done += len(items)
		for _, it := range items {
			p.logger.Error().Err(NewEmbeddingError(it.resume.ID, it.resume.FilePath, err)).Msg("向量化失败，下次运行重试")
		}
		return nil
	}

	want := p.embedder.Dimensions()
	for i, it := range items {
		vec := vectors[i]
		if len(vec) == 0 || (want > 0 && len(vec) != want) {
			return NewDimensionError(it.resume.ID, it.resume.FilePath, want, len(vec))
		}

		processed := types.ProcessedResume{
			ID:             it.resume.ID,
			ResumeUUID:     it.resume.ResumeUUID,
			FilePath:       it.resume.FilePath,
			RawText:        it.raw,
			NormalizedText: it.normalized,
			Embedding:      vec,
			EmbeddingModel: p.embedder.Model(),
		}
		if p.archiver != nil && it.resume.ResumeUUID != "" {
			key, err := p.archiver.UploadRawText(ctx, it.resume.ResumeUUID, it.raw)
			if err != nil {
				p.logger.Warn().Err(err).Uint64("id", it.resume.ID).Msg("原始文本归档失败，继续处理")
			} else {
				processed.RawTextObjectKey = key
			}
		}

		*done++
		if err := p.store.MarkProcessed(ctx, processed); err != nil {
			if errors.Is(err, storage.ErrNotPending) {
				report.Skipped++
				p.logger.Info().Uint64("id", it.resume.ID).Msg("记录已被其他任务处理")
				continue
			}
			return NewStorageError(it.resume.ID, it.resume.FilePath, err)
		}
		report.Processed++
		p.logger.Info().
			Str("progress", fmt.Sprintf("%d/%d", *done, total)).
			Str("path", it.resume.FilePath).
			Msg("简历处理完成")
	}
	return nil
}

// Run 执行一次完整入库：发现新文件，再处理全部未处理记录。
// 配置了 RunLocker 时，锁被占用返回 ErrIngestRunning。
func (p *IngestPipeline) Run(ctx context.Context) (types.IngestReport, error) {
	if p.locker != nil {
		key := storage.IngestLockKey(p.root)
		value, err := p.locker.AcquireLock(ctx, key, p.lockTTL)
		if err != nil {
			return types.IngestReport{}, fmt.Errorf("获取入库锁失败: %w", err)
		}
		if value == "" {
			return types.IngestReport{}, ErrIngestRunning
		}
		defer func() {
			// 即使 ctx 已取消也要释放锁
			if _, err := p.locker.ReleaseLock(context.WithoutCancel(ctx), key, value); err != nil {
				p.logger.Warn().Err(err).Str("key", key).Msg("释放入库锁失败")
			}
		}()
	}

	inserted, err := p.Discover(ctx)
	if err != nil {
		return types.IngestReport{Discovered: inserted}, err
	}
	report, err := p.ProcessPending(ctx)
	report.Discovered = inserted
	return report, err
}
