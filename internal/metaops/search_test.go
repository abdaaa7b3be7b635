package metaops

import (
	"context"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/registry"
)

func TestSearchLocalFindsKeywordMatch(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Search(context.Background(), SearchRequest{Query: "echo greeting", ItemType: item.TypeTool})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total == 0 {
		t.Fatalf("expected at least one hit, got none")
	}
	if resp.Items[0].ID != "echo" {
		t.Fatalf("expected echo tool to match, got %+v", resp.Items[0])
	}
}

func TestSearchMergesRegistryResultsWithoutDuplicating(t *testing.T) {
	k, _, _, _ := newTestKernel(t)
	k.Registry.(*registry.Memory).Seed(registry.Entry{
		ID: "echo", Type: item.TypeTool, Version: "1.0.0",
		Title: "echo tool", Description: "registry copy",
	})

	resp, err := k.Search(context.Background(), SearchRequest{Query: "echo", ItemType: item.TypeTool, Source: "all"})
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, it := range resp.Items {
		if it.ID == "echo" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected local result to win over registry duplicate, got %d copies", count)
	}
}
