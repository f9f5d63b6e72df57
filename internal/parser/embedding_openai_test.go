package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"resume-search/internal/config"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions"`
}

// newEmbeddingServer 返回一个按输入长度生成 2 维向量的假服务，响应顺序故意倒序
func newEmbeddingServer(t *testing.T, calls *int32, lastReq *embeddingRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if lastReq != nil {
			*lastReq = req
		}

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
}

func testEmbeddingConfig(baseURL string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		BaseURL:        baseURL + "/v1/",
		APIKey:         "test-key",
		Model:          "all-MiniLM-L6-v2",
		Dimensions:     2,
		TimeoutSeconds: 5,
	}
}

func TestOpenAIEmbedder_EmbedStrings_PreservesOrder(t *testing.T) {
	var calls int32
	var lastReq embeddingRequest
	srv := newEmbeddingServer(t, &calls, &lastReq)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(testEmbeddingConfig(srv.URL), WithClientOptions(option.WithMaxRetries(0)))
	require.NoError(t, err)

	vectors, err := e.EmbedStrings(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float64{1, 1}, vectors[0])
	assert.Equal(t, []float64{3, 1}, vectors[1])
	assert.Equal(t, []float64{2, 1}, vectors[2])

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "一批文本只调用一次接口")
	assert.Equal(t, "all-MiniLM-L6-v2", lastReq.Model)
	assert.Nil(t, lastReq.Dimensions, "默认不发送 dimensions")
}

func TestOpenAIEmbedder_ModelOverrideAndDimensions(t *testing.T) {
	var calls int32
	var lastReq embeddingRequest
	srv := newEmbeddingServer(t, &calls, &lastReq)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(testEmbeddingConfig(srv.URL), WithRequestDimensions(true))
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"}, embedding.WithModel("other-model"))
	require.NoError(t, err)
	assert.Equal(t, "other-model", lastReq.Model)
	require.NotNil(t, lastReq.Dimensions)
	assert.Equal(t, 2, *lastReq.Dimensions)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	var calls int32
	srv := newEmbeddingServer(t, &calls, nil)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(testEmbeddingConfig(srv.URL))
	require.NoError(t, err)

	vectors, err := e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(testEmbeddingConfig(srv.URL), WithClientOptions(option.WithMaxRetries(0)))
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	_, err := NewOpenAIEmbedder(config.EmbeddingConfig{Dimensions: 384})
	assert.Error(t, err)
	_, err = NewOpenAIEmbedder(config.EmbeddingConfig{Model: "m"})
	assert.Error(t, err)

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{Model: "m", Dimensions: 384, QPM: 60})
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimensions())
	assert.Equal(t, "m", e.Model())
	assert.NotNil(t, e.limiter)
}
