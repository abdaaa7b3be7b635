package registry

import (
	"context"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

func TestMemorySearchFiltersByTypeAndQuery(t *testing.T) {
	m := NewMemory()
	m.Seed(Entry{ID: "greet", Type: item.TypeTool, Version: "1.0.0", Title: "Greet", Description: "says hello"})
	m.Seed(Entry{ID: "setup", Type: item.TypeKnowledge, Version: "1.0.0", Title: "Setup guide", Description: "how to configure"})

	results, err := m.Search(context.Background(), "hello", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "greet" {
		t.Fatalf("expected only the matching entry, got %+v", results)
	}

	results, err = m.Search(context.Background(), "", item.TypeKnowledge, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "setup" {
		t.Fatalf("expected only the knowledge-typed entry, got %+v", results)
	}
}

func TestMemoryFetchReturnsLatestVersionWhenUnspecified(t *testing.T) {
	m := NewMemory()
	m.Seed(Entry{ID: "greet", Type: item.TypeTool, Version: "1.0.0"})
	m.Seed(Entry{ID: "greet", Type: item.TypeTool, Version: "2.0.0"})

	e, err := m.Fetch(context.Background(), "greet", "")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Version != "2.0.0" {
		t.Fatalf("expected latest version 2.0.0, got %+v", e)
	}
}

func TestMemoryFetchSpecificVersion(t *testing.T) {
	m := NewMemory()
	m.Seed(Entry{ID: "greet", Type: item.TypeTool, Version: "1.0.0"})
	m.Seed(Entry{ID: "greet", Type: item.TypeTool, Version: "2.0.0"})

	e, err := m.Fetch(context.Background(), "greet", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Version != "1.0.0" {
		t.Fatalf("expected pinned version 1.0.0, got %+v", e)
	}
}

func TestMemoryFetchUnknownIDReturnsNilWithoutError(t *testing.T) {
	m := NewMemory()
	e, err := m.Fetch(context.Background(), "missing", "")
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Fatalf("expected nil entry for unknown id, got %+v", e)
	}
}
