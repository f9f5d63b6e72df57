package processor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"resume-search/internal/storage"
	"resume-search/internal/types"

	"github.com/cloudwego/eino/components/embedding"
)

type fakeExtractor struct {
	texts map[string]string // path -> 原始文本，缺失表示提取失败
	calls []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) string {
	f.calls = append(f.calls, path)
	return f.texts[path]
}

type fakeEmbedder struct {
	model   string
	dims    int
	vectors map[string][]float64 // 文本 -> 向量，缺失时返回全1向量
	err     error
	calls   [][]string
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float64, f.dims)
		for j := range v {
			v[j] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string   { return f.model }
func (f *fakeEmbedder) Dimensions() int { return f.dims }

type fakeRecord struct {
	types.PendingResume
	processed types.ProcessedResume
	done      bool
}

// fakeStore 内存版 ResumeStore + CandidateSource
type fakeStore struct {
	mu        sync.Mutex
	nextID    uint64
	byPath    map[string]*fakeRecord
	insertErr error
	markErr   error
	fetchErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPath: map[string]*fakeRecord{}}
}

func (s *fakeStore) InsertIfAbsent(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, ok := s.byPath[path]; ok {
		return false, nil
	}
	s.nextID++
	s.byPath[path] = &fakeRecord{PendingResume: types.PendingResume{ID: s.nextID, ResumeUUID: "uuid-" + path, FilePath: path}}
	return true, nil
}

func (s *fakeStore) FetchUnprocessed(_ context.Context) ([]types.PendingResume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []types.PendingResume
	for _, r := range s.byPath {
		if !r.done {
			out = append(out, r.PendingResume)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) MarkProcessed(_ context.Context, p types.ProcessedResume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	r, ok := s.byPath[p.FilePath]
	if !ok || r.done {
		return storage.ErrNotPending
	}
	r.done = true
	r.processed = p
	return nil
}

func (s *fakeStore) FetchAllProcessed(_ context.Context) ([]types.IndexedResume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []types.IndexedResume
	for _, r := range s.byPath {
		if r.done {
			out = append(out, types.IndexedResume{
				ID:             r.ID,
				ResumeUUID:     r.ResumeUUID,
				FilePath:       r.FilePath,
				NormalizedText: r.processed.NormalizedText,
				Embedding:      r.processed.Embedding,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) processedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.byPath {
		if r.done {
			n++
		}
	}
	return n
}

// staticSource 固定候选集
type staticSource struct {
	resumes []types.IndexedResume
	err     error
}

func (s staticSource) FetchAllProcessed(context.Context) ([]types.IndexedResume, error) {
	return s.resumes, s.err
}

type fakeCache struct {
	data map[string][]float64
	sets int
}

func (c *fakeCache) GetQueryVector(_ context.Context, model, query string) ([]float64, error) {
	if v, ok := c.data[model+"|"+query]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (c *fakeCache) SetQueryVector(_ context.Context, model, query string, v []float64, _ time.Duration) error {
	c.sets++
	c.data[model+"|"+query] = v
	return nil
}

type fakeLocker struct {
	held     map[string]string
	released []string
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.held[key] = "token"
	return "token", nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, value string) (bool, error) {
	if l.held[key] != value {
		return false, nil
	}
	delete(l.held, key)
	l.released = append(l.released, key)
	return true, nil
}

type fakeArchiver struct {
	uploads map[string]string
	err     error
}

func (a *fakeArchiver) UploadRawText(_ context.Context, uuid, text string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.uploads[uuid] = text
	return "resume/" + uuid + "/raw_text.txt", nil
}
