package metaops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/chain"
	"github.com/rakunlabs/kiwimcp/internal/content"
	"github.com/rakunlabs/kiwimcp/internal/permission"
	"github.com/rakunlabs/kiwimcp/internal/registry"
	"github.com/rakunlabs/kiwimcp/internal/search"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newTestKernel lays out a minimal project/user/bundled tree with one
// primitive tool, one leaf tool that resolves to it, one directive, and
// one knowledge entry, then wires a Kernel on top of it.
func newTestKernel(t *testing.T) (*Kernel, string, string, string) {
	t.Helper()
	project, user, bundled := t.TempDir(), t.TempDir(), t.TempDir()

	writeFile(t, filepath.Join(bundled, "tools", "primitives", "subprocess.yaml"),
		"tool_type: primitive\ntitle: subprocess primitive\n")

	writeFile(t, filepath.Join(project, "tools", "general", "echo.yaml"),
		"tool_type: script\nexecutor: subprocess\ntitle: echo tool\ndescription: prints a greeting\n"+
			"config:\n  command: echo\n  args: [\"hi\"]\n"+
			"permissions:\n  - kind: execute\n    resource: shell\n    path: echo\n")

	writeFile(t, filepath.Join(project, "directives", "general", "greet.md"),
		"---\ntitle: greet\ndescription: says hello\nprocess:\n  - order: 1\n    name: say-hello\n---\nBody text.\n")

	writeFile(t, filepath.Join(project, "knowledge", "general", "topic.md"),
		"---\ntitle: topic\nzettel_id: topic\nentry_type: concept\n---\nSome knowledge body.\n")

	store := content.New(project, user, bundled)
	resolver := chain.New(store)

	idx := search.NewIndex(nil)
	idx.Upsert(&search.Document{
		ID: "echo", Type: "tool", Title: "echo tool", Preview: "prints a greeting",
		Fields: map[string]string{"title": "echo tool", "description": "prints a greeting"},
	})
	hybrid := search.NewHybrid(idx, nil)

	reg := registry.NewMemory()
	audit := permission.NewAuditLog(t.TempDir())

	k := New(store, resolver, hybrid, reg, audit)
	return k, project, user, bundled
}
