package handler

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"resume-search/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

var errFound = errors.New("found")

// PDFHandler 按文件名在简历根目录下查找并返回原始文件
type PDFHandler struct {
	root string
}

// NewPDFHandler 创建文件处理器
func NewPDFHandler(root string) *PDFHandler {
	return &PDFHandler{root: root}
}

// HandleGetPDF GET /pdfs/:filename
func (h *PDFHandler) HandleGetPDF(ctx context.Context, c *app.RequestContext) {
	filename := c.Param("filename")

	path, err := h.find(filename)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("filename", filename).Msg("查找简历文件失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"detail": "Error serving PDF"})
		return
	}
	if path == "" {
		c.JSON(consts.StatusNotFound, utils.H{"detail": "PDF not found: " + filename})
		return
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		c.JSON(consts.StatusBadRequest, utils.H{"detail": "Requested file is not a PDF"})
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("path", path).Msg("打开简历文件失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"detail": "Error serving PDF"})
		return
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		c.JSON(consts.StatusInternalServerError, utils.H{"detail": "Error serving PDF"})
		return
	}

	c.Response.Header.Set("Content-Disposition", inlineDisposition(filename))
	c.SetContentType("application/pdf")
	c.SetStatusCode(consts.StatusOK)
	// 响应写完后由 hertz 关闭文件
	c.SetBodyStream(f, int(info.Size()))
}

// inlineDisposition 文件名按需加引号转义，非 ASCII 使用 RFC 2231 编码
func inlineDisposition(filename string) string {
	if v := mime.FormatMediaType("inline", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "inline"
}

// find 返回根目录下第一个文件名完全匹配的普通文件，未找到返回空字符串。
// 文件名不能包含路径分隔符，符号链接不跟随。
func (h *PDFHandler) find(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || strings.ContainsRune(filename, 0) {
		return "", nil
	}

	var found string
	err := filepath.WalkDir(h.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == h.root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && d.Name() == filename {
			found = path
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return found, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return found, err
}
