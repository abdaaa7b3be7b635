package search

import (
	"testing"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

type fakeVectorBackend struct {
	available bool
	results   []Result
}

func (f *fakeVectorBackend) EmbedAndStore(d *Document) error { return nil }
func (f *fakeVectorBackend) IsAvailable() bool                { return f.available }
func (f *fakeVectorBackend) Dimension() int                   { return 8 }
func (f *fakeVectorBackend) Search(query string, itemType item.Type, limit int) ([]Result, error) {
	return f.results, nil
}

func TestHybridDegradesToKeywordWhenBackendUnavailable(t *testing.T) {
	idx := NewIndex(nil)
	idx.Upsert(doc("a", "widget guide", "widget description", "widget content"))

	h := NewHybrid(idx, &fakeVectorBackend{available: false})
	results := h.Search("widget", "", 0)
	if len(results) != 1 {
		t.Fatalf("expected one keyword result, got %d", len(results))
	}
	if results[0].SearchType != "keyword" || results[0].Quality != "degraded" {
		t.Fatalf("expected degraded keyword search annotation, got %+v", results[0])
	}
}

func TestHybridDegradesWhenNoBackendRegistered(t *testing.T) {
	idx := NewIndex(nil)
	idx.Upsert(doc("a", "widget guide", "widget description", "widget content"))

	h := NewHybrid(idx, nil)
	results := h.Search("widget", "", 0)
	if len(results) != 1 || results[0].SearchType != "keyword" {
		t.Fatalf("expected nil backend to degrade to keyword search, got %+v", results)
	}
}

func TestHybridBlendsVectorAndKeywordResults(t *testing.T) {
	idx := NewIndex(nil)
	idx.Upsert(doc("a", "widget guide", "widget description", "widget content"))
	idx.Upsert(doc("b", "unrelated", "unrelated description", "unrelated content"))

	backend := &fakeVectorBackend{
		available: true,
		results: []Result{
			{ID: "b", Type: item.TypeKnowledge, Score: 0.9},
		},
	}
	h := NewHybrid(idx, backend)
	results := h.Search("widget", "", 0)

	if len(results) != 2 {
		t.Fatalf("expected both keyword and vector hits to appear in the blend, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if r.SearchType != "hybrid" {
			t.Fatalf("expected hybrid search type annotation, got %q", r.SearchType)
		}
	}
}

func TestHybridRecencyPrefersNewerDocAmongEqualRelevance(t *testing.T) {
	idx := NewIndex(nil)
	idx.Upsert(doc("old", "same topic", "same topic description", "same topic content"))
	idx.Upsert(doc("new", "same topic", "same topic description", "same topic content"))

	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	updated := map[string]time.Time{
		"old": now.Add(-90 * 24 * time.Hour),
		"new": now.Add(-1 * time.Hour),
	}
	h := NewHybrid(idx, &fakeVectorBackend{available: true})
	h.Now = func() time.Time { return now }
	h.UpdatedAt = func(typ item.Type, id string) (time.Time, bool) {
		t, ok := updated[id]
		return t, ok
	}
	h.Weights = HybridWeights{Vector: 0, Keyword: 0.5, Recency: 0.5}

	results := h.Search("same topic", "", 0)
	if len(results) != 2 {
		t.Fatalf("expected both docs to match, got %d", len(results))
	}
	if results[0].ID != "new" {
		t.Fatalf("expected the more recently updated document to rank first, got %q first", results[0].ID)
	}
}
