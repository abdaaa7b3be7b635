package content

import (
	"path/filepath"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

// Root is one of the three identically-shaped content directories the
// store layers, in priority order (project, user, bundled).
type Root struct {
	Path   string
	Origin item.Origin
}

// defaultProtectedPrefixes is the minimum protected-prefix set: items
// under these categories always resolve from the bundled root
// regardless of what a project or user root shadows.
func defaultProtectedPrefixes() map[item.Type][]string {
	return map[item.Type][]string{
		item.TypeTool:      {"core/", "primitives/", "runtimes/", "capabilities/"},
		item.TypeKnowledge: {"kernel/", "rye/"},
	}
}

// directiveFile returns the relative path of a directive's markdown
// source within a root.
func directiveFile(category, id string) string {
	return filepath.Join("directives", category, id+".md")
}

// knowledgeFile returns the relative path of a knowledge item's markdown
// source within a root.
func knowledgeFile(category, id string) string {
	return filepath.Join("knowledge", category, id+".md")
}

// toolSingleFile returns the relative path of a file-less (single
// manifest) tool's YAML source within a root.
func toolSingleFile(category, id string) string {
	return filepath.Join("tools", category, id+".yaml")
}

// toolDir returns the relative directory of a multi-file tool within a
// root; the manifest itself lives at toolDir/tool.yaml.
func toolDir(category, id string) string {
	return filepath.Join("tools", category, id)
}
