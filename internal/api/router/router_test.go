package router

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"resume-search/internal/api/handler"
	"resume-search/internal/types"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okSearcher struct{}

func (okSearcher) Search(_ context.Context, jd string) (*types.SearchResponse, error) {
	return &types.SearchResponse{Query: jd, Results: []types.QueryResult{}}, nil
}

type okCounter struct{}

func (okCounter) CountResumes(context.Context) (int64, int64, error) { return 1, 1, nil }

func newTestServer(t *testing.T, opts Options) *server.Hertz {
	t.Helper()
	h := server.New()
	if opts.Search == nil {
		opts.Search = handler.NewSearchHandler(okSearcher{})
	}
	if opts.Health == nil {
		opts.Health = handler.NewHealthHandler(okCounter{})
	}
	if opts.PDF == nil {
		opts.PDF = handler.NewPDFHandler(t.TempDir())
	}
	RegisterRoutes(h, opts)
	return h
}

func TestRegisterRoutes_CORSAllowAll(t *testing.T) {
	h := newTestServer(t, Options{})

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/search?job_description=go", nil,
		ut.Header{Key: "Origin", Value: "http://example.com"})
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRegisterRoutes_RequestIDPassthrough(t *testing.T) {
	h := newTestServer(t, Options{})
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/health", nil,
		ut.Header{Key: "X-Request-ID", Value: "req-123"})
	assert.Equal(t, "req-123", w.Result().Header.Get("X-Request-ID"))
}

func TestRegisterRoutes_APIKey(t *testing.T) {
	h := newTestServer(t, Options{APIKeys: []string{"secret"}})

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/search?job_description=go", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/search?job_description=go", nil,
		ut.Header{Key: "Authorization", Value: "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/search?job_description=go", nil,
		ut.Header{Key: "Authorization", Value: "Bearer secret"})
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())

	// 健康检查不需要鉴权
	w = ut.PerformRequest(h.Engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestRegisterRoutes_StaticMount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>resume search</h1>"), 0o644))

	h := newTestServer(t, Options{StaticDir: dir})
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/static/index.html", nil)
	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "<h1>resume search</h1>", string(resp.Body()))
}

func TestRegisterRoutes_CustomPDFPrefix(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte("%PDF"), 0o644))

	h := newTestServer(t, Options{PDF: handler.NewPDFHandler(root), PDFRoutePrefix: "/files/"})
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/files/a.pdf", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}
