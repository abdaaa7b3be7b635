package metaops

import (
	"context"

	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"github.com/rakunlabs/kiwimcp/internal/search"
)

// Search dispatches to the keyword/hybrid search engine, optionally
// merging in registry results.
func (k *Kernel) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	source := req.Source
	if source == "" {
		source = "local"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	var local []search.Result
	searchType := "keyword"
	quality := "good"

	if source == "local" || source == "all" {
		if req.Strategy == "vector" || req.Strategy == "hybrid" || req.Strategy == "" || req.Strategy == "auto" {
			local = k.Hybrid.Search(req.Query, req.ItemType, limit)
			if len(local) > 0 {
				searchType = local[0].SearchType
				quality = local[0].Quality
			}
		} else {
			local = k.Hybrid.Keyword.Search(req.Query, req.ItemType, limit, 0)
			for i := range local {
				local[i].SearchType = "keyword"
				local[i].Quality = "good"
			}
		}
	}

	var registryResults []search.Result
	if (source == "registry" || source == "all") && k.Registry != nil {
		entries, err := k.Registry.Search(ctx, req.Query, req.ItemType, limit)
		if err != nil {
			return nil, kernel.New(kernel.CodeExecutionFailed, "registry search failed: %v", err)
		}
		for _, e := range entries {
			registryResults = append(registryResults, search.Result{
				ID: e.ID, Type: e.Type, Title: e.Title, Preview: e.Description,
				SearchType: "registry", Quality: "good",
			})
		}
	}

	merged := mergeDedup(local, registryResults)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	return &SearchResponse{Items: merged, SearchType: searchType, Quality: quality, Total: len(merged)}, nil
}

func mergeDedup(a, b []search.Result) []search.Result {
	seen := make(map[string]bool, len(a))
	out := make([]search.Result, 0, len(a)+len(b))
	for _, r := range a {
		seen[string(r.Type)+"/"+r.ID] = true
		out = append(out, r)
	}
	for _, r := range b {
		key := string(r.Type) + "/" + r.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
