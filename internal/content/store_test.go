package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadKnowledgeFromProjectShadowsBundled(t *testing.T) {
	project := t.TempDir()
	bundled := t.TempDir()

	writeFile(t, filepath.Join(bundled, "knowledge", "general", "topic.md"),
		"---\ntitle: bundled\nzettel_id: z1\nentry_type: concept\n---\nbody\n")
	writeFile(t, filepath.Join(project, "knowledge", "general", "topic.md"),
		"---\ntitle: project\nzettel_id: z1\nentry_type: concept\n---\nbody\n")

	s := New(project, t.TempDir(), bundled)
	it, err := s.Load(item.Key{Type: item.TypeKnowledge, ID: "topic"})
	if err != nil {
		t.Fatal(err)
	}
	if it.Manifest.Title != "project" || it.Origin != item.OriginProject {
		t.Fatalf("expected project shadow to win, got %+v", it)
	}
}

func TestProtectedPrefixAlwaysBundled(t *testing.T) {
	project := t.TempDir()
	bundled := t.TempDir()

	writeFile(t, filepath.Join(bundled, "tools", "core", "echo.yaml"),
		"tool_type: primitive\ntitle: bundled-echo\n")
	writeFile(t, filepath.Join(project, "tools", "core", "echo.yaml"),
		"tool_type: primitive\ntitle: project-echo\n")

	s := New(project, t.TempDir(), bundled)
	it, err := s.Load(item.Key{Type: item.TypeTool, ID: "echo"})
	if err != nil {
		t.Fatal(err)
	}
	if it.Origin != item.OriginBundled || it.Manifest.Title != "bundled-echo" {
		t.Fatalf("expected protected prefix to force bundled, got %+v", it)
	}
}

func TestDirectiveNeverProtected(t *testing.T) {
	project := t.TempDir()
	bundled := t.TempDir()

	writeFile(t, filepath.Join(bundled, "directives", "core", "d1.md"),
		"---\ntitle: bundled\nprocess:\n  - order: 1\n    name: step\n---\n")
	writeFile(t, filepath.Join(project, "directives", "core", "d1.md"),
		"---\ntitle: project\nprocess:\n  - order: 1\n    name: step\n---\n")

	s := New(project, t.TempDir(), bundled)
	it, err := s.Load(item.Key{Type: item.TypeDirective, ID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if it.Origin != item.OriginProject {
		t.Fatalf("directives are shadowable with no protection, got origin %v", it.Origin)
	}
}

func TestLoadFromOriginTargetsSpecificLayerEvenWhenShadowed(t *testing.T) {
	project := t.TempDir()
	bundled := t.TempDir()

	writeFile(t, filepath.Join(bundled, "knowledge", "general", "topic.md"),
		"---\ntitle: bundled\nzettel_id: z1\nentry_type: concept\n---\nbody\n")
	writeFile(t, filepath.Join(project, "knowledge", "general", "topic.md"),
		"---\ntitle: project\nzettel_id: z1\nentry_type: concept\n---\nbody\n")

	s := New(project, t.TempDir(), bundled)

	it, err := s.LoadFromOrigin(item.Key{Type: item.TypeKnowledge, ID: "topic"}, item.OriginBundled)
	if err != nil {
		t.Fatal(err)
	}
	if it.Origin != item.OriginBundled || it.Manifest.Title != "bundled" {
		t.Fatalf("expected the bundled layer's own copy, got %+v", it)
	}
}

func TestLoadFromOriginMissingAtThatLayerErrors(t *testing.T) {
	project := t.TempDir()
	bundled := t.TempDir()

	writeFile(t, filepath.Join(project, "knowledge", "general", "topic.md"),
		"---\ntitle: project\nzettel_id: z1\nentry_type: concept\n---\nbody\n")

	s := New(project, t.TempDir(), bundled)

	if _, err := s.LoadFromOrigin(item.Key{Type: item.TypeKnowledge, ID: "topic"}, item.OriginBundled); err == nil {
		t.Fatal("expected not_found since the bundled layer has no copy of this item")
	}
}

func TestNotFound(t *testing.T) {
	s := New(t.TempDir(), t.TempDir(), t.TempDir())
	_, err := s.Load(item.Key{Type: item.TypeTool, ID: "missing"})
	if err == nil {
		t.Fatal("expected not_found error")
	}
}

func TestBatchLoad(t *testing.T) {
	bundled := t.TempDir()
	writeFile(t, filepath.Join(bundled, "tools", "cat", "a.yaml"), "tool_type: primitive\n")
	writeFile(t, filepath.Join(bundled, "tools", "cat", "b.yaml"), "tool_type: primitive\n")

	s := New(t.TempDir(), t.TempDir(), bundled)
	got, err := s.BatchLoad([]item.Key{
		{Type: item.TypeTool, ID: "a"},
		{Type: item.TypeTool, ID: "b"},
		{Type: item.TypeTool, ID: "missing"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved items, got %d", len(got))
	}
}
