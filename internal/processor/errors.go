package processor

import (
	"errors"
	"fmt"
)

// 错误分类，HTTP 层据此映射状态码
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrExtractionFailed  = errors.New("提取简历文本失败")
	ErrEmbedding         = errors.New("文本向量化失败")
	ErrStorage           = errors.New("存储操作失败")
	ErrDimensionMismatch = errors.New("向量维度不一致")
	ErrIngestRunning     = errors.New("已有入库任务在运行")
)

// ResumeProcessError 包含单份简历上下文的错误
type ResumeProcessError struct {
	ResumeID uint64
	Path     string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *ResumeProcessError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, ID:%d, 路径:%s): %s", e.BaseErr, e.Op, e.ResumeID, e.Path, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, ID:%d, 路径:%s)", e.BaseErr, e.Op, e.ResumeID, e.Path)
}

func (e *ResumeProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ResumeProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func NewExtractionError(id uint64, path, detail string) error {
	return &ResumeProcessError{ResumeID: id, Path: path, Op: "extract", BaseErr: ErrExtractionFailed, Detail: detail}
}

func NewEmbeddingError(id uint64, path string, err error) error {
	return &ResumeProcessError{ResumeID: id, Path: path, Op: "embed", BaseErr: ErrEmbedding, Detail: errString(err)}
}

func NewStorageError(id uint64, path string, err error) error {
	return &ResumeProcessError{ResumeID: id, Path: path, Op: "store", BaseErr: ErrStorage, Detail: errString(err)}
}

func NewDimensionError(id uint64, path string, want, got int) error {
	return &ResumeProcessError{
		ResumeID: id,
		Path:     path,
		Op:       "embed",
		BaseErr:  ErrDimensionMismatch,
		Detail:   fmt.Sprintf("期望 %d 维, 实际 %d 维", want, got),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
