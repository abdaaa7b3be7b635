package search

import (
	"math"
	"sort"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

// HybridWeights controls the blend between vector similarity, keyword
// score, and recency when a vector backend is available.
type HybridWeights struct {
	Vector   float64
	Keyword  float64
	Recency  float64
}

// DefaultHybridWeights matches the default blend: mostly semantic
// similarity, a meaningful keyword contribution, and a light recency tilt.
func DefaultHybridWeights() HybridWeights {
	return HybridWeights{Vector: 0.7, Keyword: 0.2, Recency: 0.1}
}

// Hybrid combines the keyword Index with an optional VectorBackend.
type Hybrid struct {
	Keyword *Index
	Vector  VectorBackend
	Weights HybridWeights

	// Now supplies the current time for recency scoring; tests override
	// it to avoid depending on wall-clock time.
	Now func() time.Time

	// UpdatedAt looks up a document's last-modified time by (type, id)
	// for recency scoring. Nil means every document scores 0 recency.
	UpdatedAt func(typ item.Type, id string) (time.Time, bool)
}

// NewHybrid builds a Hybrid searcher over an existing keyword index. The
// vector backend may be nil, in which case Search always degrades to
// keyword-only.
func NewHybrid(idx *Index, vec VectorBackend) *Hybrid {
	return &Hybrid{Keyword: idx, Vector: vec, Weights: DefaultHybridWeights(), Now: time.Now}
}

// Search blends vector and keyword results. When the vector backend is
// nil or unavailable, it degrades silently to a keyword-only search and
// annotates every result's SearchType/Quality accordingly rather than
// failing the call.
func (h *Hybrid) Search(query string, itemType item.Type, limit int) []Result {
	kw := h.Keyword.Search(query, itemType, 0, 0)

	if h.Vector == nil || !h.Vector.IsAvailable() {
		for i := range kw {
			kw[i].SearchType = "keyword"
			kw[i].Quality = "degraded"
		}
		return capResults(kw, limit)
	}

	vecResults, err := h.Vector.Search(query, itemType, 0)
	if err != nil {
		for i := range kw {
			kw[i].SearchType = "keyword"
			kw[i].Quality = "degraded"
		}
		return capResults(kw, limit)
	}

	return capResults(h.blend(kw, vecResults), limit)
}

func resultKey(typ item.Type, id string) string { return string(typ) + "/" + id }

func (h *Hybrid) blend(kw, vec []Result) []Result {
	maxKW := maxScore(kw)
	maxVec := maxScore(vec)

	merged := make(map[string]*Result)
	for _, r := range kw {
		rc := r
		merged[resultKey(r.Type, r.ID)] = &rc
	}

	scores := make(map[string]float64)
	for key, r := range merged {
		norm := normalize(r.Score, maxKW)
		scores[key] += h.Weights.Keyword * norm
	}
	for _, r := range vec {
		key := resultKey(r.Type, r.ID)
		if existing, ok := merged[key]; ok {
			existing.Title = pickNonEmpty(existing.Title, r.Title)
			existing.Preview = pickNonEmpty(existing.Preview, r.Preview)
			existing.Path = pickNonEmpty(existing.Path, r.Path)
		} else {
			rc := r
			merged[key] = &rc
		}
		norm := normalize(r.Score, maxVec)
		scores[key] += h.Weights.Vector * norm
	}

	for key, r := range merged {
		scores[key] += h.Weights.Recency * h.recencyScore(r.Type, r.ID)
	}

	out := make([]Result, 0, len(merged))
	for key, r := range merged {
		r.Score = scores[key]
		r.SearchType = "hybrid"
		r.Quality = "good"
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (h *Hybrid) recencyScore(typ item.Type, id string) float64 {
	if h.UpdatedAt == nil {
		return 0
	}
	t, ok := h.UpdatedAt(typ, id)
	if !ok {
		return 0
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	age := now.Sub(t)
	if age < 0 {
		age = 0
	}
	const halfLife = 30 * 24 * time.Hour
	// exponential decay: 1.0 for brand-new, 0.5 at one half-life, etc.
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func maxScore(results []Result) float64 {
	var max float64
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	return max
}

func normalize(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max
}

func pickNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func capResults(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
