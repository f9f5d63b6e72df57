package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"resume-search/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toyCandidates() []types.IndexedResume {
	return []types.IndexedResume{
		{ID: 1, FilePath: "/data/resumes/exact.pdf", NormalizedText: "exact", Embedding: []float64{1, 0}},
		{ID: 2, FilePath: "/data/resumes/orthogonal.pdf", NormalizedText: "orthogonal", Embedding: []float64{0, 1}},
		{ID: 3, FilePath: "/data/resumes/close.pdf", NormalizedText: "close", Embedding: []float64{0.9, 0.1}},
	}
}

func TestSearch_ToyScenarioWorstFirst(t *testing.T) {
	emb := &fakeEmbedder{model: "m", dims: 2, vectors: map[string][]float64{"go engineer": {1, 0}}}
	svc, err := NewSearchService(emb, staticSource{resumes: toyCandidates()}, WithTopK(3))
	require.NoError(t, err)

	resp, err := svc.Search(context.Background(), "go engineer")
	require.NoError(t, err)
	assert.Equal(t, "go engineer", resp.Query)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "orthogonal.pdf", resp.Results[0].Filename)
	assert.Equal(t, 100.0, resp.Results[0].Score)
	assert.Equal(t, "close.pdf", resp.Results[1].Filename)
	assert.Equal(t, 0.61, resp.Results[1].Score)
	assert.Equal(t, "exact.pdf", resp.Results[2].Filename)
	assert.Equal(t, 0.0, resp.Results[2].Score)

	assert.Equal(t, "/pdfs/exact.pdf", resp.Results[2].FilePath)
	assert.Equal(t, "exact", resp.Results[2].Text)
}

func TestSearch_DefaultTopKIsFive(t *testing.T) {
	var resumes []types.IndexedResume
	for i := 1; i <= 8; i++ {
		resumes = append(resumes, types.IndexedResume{
			ID:        uint64(i),
			FilePath:  "/r/" + string(rune('a'+i)) + ".pdf",
			Embedding: []float64{1, float64(i)},
		})
	}
	svc, err := NewSearchService(&fakeEmbedder{dims: 2, vectors: map[string][]float64{"q": {1, 0}}}, staticSource{resumes: resumes})
	require.NoError(t, err)

	resp, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, resp.Results, 5)
	// 最相似的 (i=1) 在最后
	assert.Equal(t, "b.pdf", resp.Results[4].Filename)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestSearch_Errors(t *testing.T) {
	emb := &fakeEmbedder{dims: 2}

	svc, err := NewSearchService(emb, staticSource{resumes: toyCandidates()})
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, emb.calls)

	resp, err := svc.Search(context.Background(), "   ")
	require.NoError(t, err, "纯空白查询不是空查询")
	assert.Equal(t, "   ", resp.Query)
	assert.Equal(t, [][]string{{"   "}}, emb.calls)
	emb.calls = nil

	empty, err := NewSearchService(emb, staticSource{})
	require.NoError(t, err)
	_, err = empty.Search(context.Background(), "go")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, emb.calls, "候选集为空时不应调用向量接口")

	broken, err := NewSearchService(emb, staticSource{err: errors.New("db down")})
	require.NoError(t, err)
	_, err = broken.Search(context.Background(), "go")
	assert.ErrorIs(t, err, ErrStorage)

	failing, err := NewSearchService(&fakeEmbedder{err: errors.New("timeout")}, staticSource{resumes: toyCandidates()})
	require.NoError(t, err)
	_, err = failing.Search(context.Background(), "go")
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{dims: 3, vectors: map[string][]float64{"q": {1, 0, 0}}}
	svc, err := NewSearchService(emb, staticSource{resumes: toyCandidates()})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearch_QueryIsNotNormalized(t *testing.T) {
	emb := &fakeEmbedder{dims: 2}
	svc, err := NewSearchService(emb, staticSource{resumes: toyCandidates()})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "Senior GO Engineer!!")
	require.NoError(t, err)
	require.Len(t, emb.calls, 1)
	assert.Equal(t, []string{"Senior GO Engineer!!"}, emb.calls[0])
}

func TestSearch_UsesQueryCache(t *testing.T) {
	emb := &fakeEmbedder{model: "m", dims: 2, vectors: map[string][]float64{"q": {1, 0}}}
	cache := &fakeCache{data: map[string][]float64{}}
	svc, err := NewSearchService(emb, staticSource{resumes: toyCandidates()}, WithQueryCache(cache, time.Minute))
	require.NoError(t, err)

	first, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)

	assert.Len(t, emb.calls, 1, "第二次检索应命中缓存")
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first, second)
}

func TestSearch_FilePathEscaping(t *testing.T) {
	resumes := []types.IndexedResume{{ID: 1, FilePath: "/r/Jane Doe #1.pdf", Embedding: []float64{1, 0}}}
	svc, err := NewSearchService(&fakeEmbedder{dims: 2}, staticSource{resumes: resumes}, WithPDFRoutePrefix("files/"))
	require.NoError(t, err)

	resp, err := svc.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Jane Doe #1.pdf", resp.Results[0].Filename)
	assert.Equal(t, "/files/Jane%20Doe%20%231.pdf", resp.Results[0].FilePath)
}

func TestResumeProcessError(t *testing.T) {
	err := NewEmbeddingError(7, "/r/a.pdf", errors.New("boom"))
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "ID:7")
	assert.Contains(t, err.Error(), "boom")
}
