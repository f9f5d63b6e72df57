// Package ranker 对候选向量做余弦相似度打分和 Top-K 排序。
//
// 对外展示的分数沿用历史约定：score = (1 - sim) * 100，保留两位小数。
// 分数越小越相似，取值范围 [0, 200]，不是百分比。
package ranker

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
)

// ErrDimensionMismatch 查询向量与候选向量维度不一致
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Candidate 参与排序的候选项
type Candidate[P any] struct {
	ID      uint64
	Vector  []float64
	Payload P
}

// Ranked 排序结果，Similarity 为原始余弦相似度
type Ranked[P any] struct {
	ID         uint64
	Payload    P
	Similarity float64
	Score      float64
}

// Rank 返回按相似度降序排列的前 k 个候选（最相似的在前）。
//
// 向量为空或模长为0的候选不参与排序；查询向量模长为0时返回空结果。
// 任一候选维度与查询向量不一致时整体返回 ErrDimensionMismatch。
// 相似度相同的候选保持输入顺序。
func Rank[P any](query []float64, candidates []Candidate[P], k int) ([]Ranked[P], error) {
	if k <= 0 || len(candidates) == 0 {
		return []Ranked[P]{}, nil
	}

	scored := make([]Ranked[P], 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) == 0 {
			continue
		}
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("%w: candidate %d has %d, query has %d",
				ErrDimensionMismatch, c.ID, len(c.Vector), len(query))
		}
		sim, ok := CosineSimilarity(query, c.Vector)
		if !ok {
			continue
		}
		scored = append(scored, Ranked[P]{
			ID:         c.ID,
			Payload:    c.Payload,
			Similarity: sim,
			Score:      DisplayScore(sim),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// CosineSimilarity 计算两个等长向量的余弦相似度，任一模长为0时 ok 为 false
func CosineSimilarity(a, b []float64) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot(a, b) / (na * nb), true
}

// DisplayScore (1 - sim) * 100，保留两位小数。
// 按二进制精确值舍入，恰好居中时取偶数，与 Python round(x, 2) 结果一致。
func DisplayScore(sim float64) float64 {
	score, _ := strconv.ParseFloat(strconv.FormatFloat((1-sim)*100, 'f', 2, 64), 64)
	return score
}

// ReverseForDisplay 返回倒序副本：最相似的排在最后
func ReverseForDisplay[T any](ranked []T) []T {
	out := slices.Clone(ranked)
	slices.Reverse(out)
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
