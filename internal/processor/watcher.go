package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	appLogger "resume-search/internal/logger"
	"resume-search/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultWatchDebounce = 2 * time.Second

// Watcher 监听简历根目录，文件变化稳定一段时间后触发一次入库
type Watcher struct {
	pipeline *IngestPipeline
	debounce time.Duration
	logger   zerolog.Logger

	// onRun 每次入库结束后回调，便于观察
	onRun func(types.IngestReport, error)
}

// WatcherOption 配置 Watcher
type WatcherOption func(*Watcher)

// WithOnRun 设置入库完成回调
func WithOnRun(fn func(types.IngestReport, error)) WatcherOption {
	return func(w *Watcher) { w.onRun = fn }
}

// NewWatcher 创建目录监听器，debounce<=0 时使用默认值
func NewWatcher(pipeline *IngestPipeline, debounce time.Duration, opts ...WatcherOption) *Watcher {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	w := &Watcher{
		pipeline: pipeline,
		debounce: debounce,
		logger:   appLogger.Component("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 先执行一次入库，然后监听直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.pipeline.Root()); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.pipeline.Root()).Dur("debounce", w.debounce).Msg("开始监听简历目录")

	w.runOnce(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("停止监听简历目录")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fw, ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("文件监听出错")
		case <-timer.C:
			w.runOnce(ctx)
		}
	}
}

// handleEvent 返回该事件是否需要触发入库
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fw, ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", ev.Name).Msg("监听新目录失败")
			}
			return true
		}
	}
	return w.pipeline.Matches(ev.Name)
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("监听目录 %s 失败: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("监听目录 %s 失败: %w", root, err)
			}
			w.logger.Warn().Err(err).Str("dir", path).Msg("监听子目录失败")
		}
		return nil
	})
}

func (w *Watcher) runOnce(ctx context.Context) {
	report, err := w.pipeline.Run(ctx)
	switch {
	case errors.Is(err, ErrIngestRunning):
		w.logger.Info().Msg("已有入库任务在运行，本次跳过")
	case err != nil && ctx.Err() == nil:
		w.logger.Error().Err(err).Msg("入库失败")
	default:
		w.logger.Info().
			Int("discovered", report.Discovered).
			Int("processed", report.Processed).
			Msg("入库完成")
	}
	if w.onRun != nil {
		w.onRun(report, err)
	}
}
