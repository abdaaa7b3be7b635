// Package content implements the kernel's three-layer content store:
// project ".ai/", user "~/.ai/" (or $USER_PATH), and bundled defaults,
// with protected-prefix and shadowable-type rules.
package content

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"gopkg.in/yaml.v3"
)

// Store resolves items across the three content roots.
type Store struct {
	roots              []Root // priority order: project, user, bundled
	protectedPrefixes  map[item.Type][]string
	shadowableNoProtect map[item.Type]bool

	mu    sync.RWMutex
	cache map[item.Key]*item.Item
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithProtectedPrefixes overrides the default protected-prefix set.
func WithProtectedPrefixes(prefixes map[item.Type][]string) Option {
	return func(s *Store) { s.protectedPrefixes = prefixes }
}

// New builds a Store from the three root paths, in priority order. Any
// root that does not exist on disk is simply skipped during lookups.
func New(projectPath, userPath, bundledPath string, opts ...Option) *Store {
	s := &Store{
		roots: []Root{
			{Path: projectPath, Origin: item.OriginProject},
			{Path: userPath, Origin: item.OriginUser},
			{Path: bundledPath, Origin: item.OriginBundled},
		},
		protectedPrefixes:   defaultProtectedPrefixes(),
		shadowableNoProtect: map[item.Type]bool{item.TypeDirective: true},
		cache:               make(map[item.Key]*item.Item),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// candidate is one match for an id found while scanning a single root.
type candidate struct {
	root     Root
	category string
}

// Load resolves a single item by key, applying protection/shadow rules.
func (s *Store) Load(key item.Key) (*item.Item, error) {
	if key.Version == "" {
		if cached, ok := s.cached(key); ok {
			return cached, nil
		}
	}

	candidates := s.findCandidates(key.Type, key.ID)
	if len(candidates) == 0 {
		return nil, kernel.New(kernel.CodeNotFound, "item %s/%s not found in any content root", key.Type, key.ID).
			WithSuggestion("check the id and category, or run load(source=registry)")
	}

	chosen := s.choose(key.Type, candidates)

	it, err := s.loadFrom(chosen.root, key.Type, chosen.category, key.ID)
	if err != nil {
		return nil, err
	}

	s.store(item.Key{Type: key.Type, ID: key.ID}, it)
	return it, nil
}

// LoadFromOrigin resolves key from exactly one content root, bypassing
// the normal project>user>bundled shadow priority — for callers that
// ask for a specific layer's copy of an item rather than whichever
// layer would normally win.
func (s *Store) LoadFromOrigin(key item.Key, origin item.Origin) (*item.Item, error) {
	var root *Root
	for i := range s.roots {
		if s.roots[i].Origin == origin {
			root = &s.roots[i]
			break
		}
	}
	if root == nil {
		return nil, kernel.New(kernel.CodeNotFound, "no content root configured for origin %q", origin)
	}

	category, ok := s.indexRoot(*root, key.Type)[key.ID]
	if !ok {
		return nil, kernel.New(kernel.CodeNotFound, "item %s/%s not found in the %s root", key.Type, key.ID, origin).
			WithSuggestion("check the id and category, or try a different source")
	}

	return s.loadFrom(*root, key.Type, category, key.ID)
}

// BatchLoad resolves several keys with a single pass over each root's
// directory tree rather than one walk per key, matching the
// batch-loading requirement.
func (s *Store) BatchLoad(keys []item.Key) (map[item.Key]*item.Item, error) {
	out := make(map[item.Key]*item.Item, len(keys))

	byType := make(map[item.Type][]item.Key)
	for _, k := range keys {
		byType[k.Type] = append(byType[k.Type], k)
	}

	for typ, ks := range byType {
		index := make(map[Root]map[string]string) // root -> id -> category
		for _, root := range s.roots {
			index[root] = s.indexRoot(root, typ)
		}
		for _, k := range ks {
			var candidates []candidate
			for _, root := range s.roots {
				if cat, ok := index[root][k.ID]; ok {
					candidates = append(candidates, candidate{root: root, category: cat})
				}
			}
			if len(candidates) == 0 {
				continue
			}
			chosen := s.choose(typ, candidates)
			it, err := s.loadFrom(chosen.root, typ, chosen.category, k.ID)
			if err != nil {
				continue
			}
			s.store(item.Key{Type: typ, ID: k.ID}, it)
			out[k] = it
		}
	}
	return out, nil
}

// List returns manifests (no file bytes) for every item of the given type,
// optionally filtered by category, across all three roots with shadowing
// applied (each id appears at most once, from its winning root).
func (s *Store) List(typ item.Type, category string) ([]*item.Item, error) {
	index := make(map[string]candidate)
	// iterate roots in *reverse* priority so that higher-priority roots
	// overwrite lower-priority entries for the same id.
	for i := len(s.roots) - 1; i >= 0; i-- {
		root := s.roots[i]
		for id, cat := range s.indexRoot(root, typ) {
			if category != "" && cat != category {
				continue
			}
			index[id] = candidate{root: root, category: cat}
		}
	}

	// re-apply protection: for ids under a protected prefix, force bundled.
	bundled := s.bundledRoot()
	for id, c := range index {
		if s.isProtected(typ, c.category) && bundled != nil {
			if bc, ok := s.indexRoot(*bundled, typ)[id]; ok {
				index[id] = candidate{root: *bundled, category: bc}
			}
		}
	}

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]*item.Item, 0, len(ids))
	for _, id := range ids {
		c := index[id]
		it, err := s.loadFrom(c.root, typ, c.category, id)
		if err != nil {
			continue
		}
		it.Files = nil
		it.Source = nil
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) bundledRoot() *Root {
	for _, r := range s.roots {
		if r.Origin == item.OriginBundled {
			return &r
		}
	}
	return nil
}

// RootPath returns the filesystem path configured for origin, if any
// root in the store carries it.
func (s *Store) RootPath(origin item.Origin) (string, bool) {
	for _, r := range s.roots {
		if r.Origin == origin {
			return r.Path, true
		}
	}
	return "", false
}

// ManifestPath reconstructs the absolute path to it's primary manifest
// file (the markdown source for directives/knowledge, tool.yaml or
// <id>.yaml for tools), for callers that need to write back to it (sign,
// create, update).
func (s *Store) ManifestPath(it *item.Item) (string, error) {
	rootPath, ok := s.RootPath(it.Origin)
	if !ok {
		return "", fmt.Errorf("no content root configured for origin %q", it.Origin)
	}
	switch it.Type {
	case item.TypeDirective:
		return filepath.Join(rootPath, directiveFile(it.Category, it.ID)), nil
	case item.TypeKnowledge:
		return filepath.Join(rootPath, knowledgeFile(it.Category, it.ID)), nil
	case item.TypeTool:
		dirPath := filepath.Join(rootPath, toolDir(it.Category, it.ID))
		if info, err := os.Stat(dirPath); err == nil && info.IsDir() {
			return filepath.Join(dirPath, "tool.yaml"), nil
		}
		return filepath.Join(rootPath, toolSingleFile(it.Category, it.ID)), nil
	default:
		return "", fmt.Errorf("unknown item type %q", it.Type)
	}
}

// WriteItemSource writes src to it's manifest path, creating parent
// directories as needed, and invalidates any cached copy of the item.
func (s *Store) WriteItemSource(it *item.Item, src []byte) error {
	path, err := s.ManifestPath(it)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directories for %s: %w", path, err)
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	s.invalidate(item.Key{Type: it.Type, ID: it.ID})
	return nil
}

// Delete removes it's manifest (and, for a multi-file tool, its whole
// directory) from its origin root and invalidates any cached copy.
func (s *Store) Delete(it *item.Item) error {
	path, err := s.ManifestPath(it)
	if err != nil {
		return err
	}
	if it.Type == item.TypeTool && filepath.Base(path) == "tool.yaml" {
		if err := os.RemoveAll(filepath.Dir(path)); err != nil {
			return fmt.Errorf("removing %s: %w", filepath.Dir(path), err)
		}
	} else if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	s.invalidate(item.Key{Type: it.Type, ID: it.ID})
	return nil
}

func (s *Store) invalidate(key item.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
}

func (s *Store) cached(key item.Key) (*item.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.cache[key]
	return it, ok
}

func (s *Store) store(key item.Key, it *item.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = it
}

// choose applies protected-prefix precedence, then falls back to
// project > user > bundled (the order candidates are discovered in).
func (s *Store) choose(typ item.Type, candidates []candidate) candidate {
	if !s.shadowableNoProtect[typ] {
		for _, c := range candidates {
			if c.root.Origin == item.OriginBundled && s.isProtected(typ, c.category) {
				return c
			}
		}
	}
	// normal priority: candidates are already ordered project->user->bundled
	// because s.roots is iterated in that order by findCandidates/indexRoot.
	best := candidates[0]
	bestRank := s.rank(best.root)
	for _, c := range candidates[1:] {
		if r := s.rank(c.root); r < bestRank {
			best, bestRank = c, r
		}
	}
	return best
}

func (s *Store) rank(r Root) int {
	for i, root := range s.roots {
		if root == r {
			return i
		}
	}
	return len(s.roots)
}

// IsProtectedCategory reports whether category falls under one of typ's
// protected prefixes, for callers deciding whether an item may be
// copied into the project or user layer.
func (s *Store) IsProtectedCategory(typ item.Type, category string) bool {
	return s.isProtected(typ, category)
}

// isProtected reports whether category falls under the longest matching
// protected prefix for typ (the "most specific wins" tie-break
// degenerates to "matches at all" here since prefixes are disjoint).
func (s *Store) isProtected(typ item.Type, category string) bool {
	prefixes := s.protectedPrefixes[typ]
	longest := -1
	for _, p := range prefixes {
		if strings.HasPrefix(category+"/", p) && len(p) > longest {
			longest = len(p)
		}
	}
	return longest >= 0
}

func (s *Store) findCandidates(typ item.Type, id string) []candidate {
	var out []candidate
	for _, root := range s.roots {
		if cat, ok := s.indexRoot(root, typ)[id]; ok {
			out = append(out, candidate{root: root, category: cat})
		}
	}
	return out
}

// indexRoot walks the type subtree of a root and returns id -> category.
// Directory walks over small content trees are cheap enough that no
// persistent index is kept; the per-key manifest cache above avoids
// repeat walks for already-resolved ids.
func (s *Store) indexRoot(root Root, typ item.Type) map[string]string {
	sub := string(typ) + "s"
	if typ == item.TypeDirective {
		sub = "directives"
	} else if typ == item.TypeKnowledge {
		sub = "knowledge"
	} else if typ == item.TypeTool {
		sub = "tools"
	}
	base := filepath.Join(root.Path, sub)
	out := make(map[string]string)

	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return out
	}

	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || path == base {
			return nil
		}
		rel, _ := filepath.Rel(base, path)
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")
		switch typ {
		case item.TypeDirective, item.TypeKnowledge:
			if !strings.HasSuffix(rel, ".md") || len(parts) < 2 {
				return nil
			}
			category := strings.Join(parts[:len(parts)-1], "/")
			id := strings.TrimSuffix(parts[len(parts)-1], ".md")
			out[id] = category
		case item.TypeTool:
			if strings.HasSuffix(rel, ".yaml") && filepath.Base(path) != "tool.yaml" {
				if len(parts) < 2 {
					return nil
				}
				category := strings.Join(parts[:len(parts)-1], "/")
				id := strings.TrimSuffix(parts[len(parts)-1], ".yaml")
				out[id] = category
			} else if filepath.Base(path) == "tool.yaml" {
				// tools/{category}/{id}/tool.yaml
				if len(parts) < 3 {
					return nil
				}
				id := parts[len(parts)-2]
				category := strings.Join(parts[:len(parts)-2], "/")
				out[id] = category
			}
		}
		return nil
	})
	return out
}

func (s *Store) loadFrom(root Root, typ item.Type, category, id string) (*item.Item, error) {
	switch typ {
	case item.TypeDirective:
		return s.loadMarkdown(root, typ, category, id, directiveFile(category, id))
	case item.TypeKnowledge:
		return s.loadMarkdown(root, typ, category, id, knowledgeFile(category, id))
	case item.TypeTool:
		return s.loadTool(root, category, id)
	default:
		return nil, fmt.Errorf("unknown item type %q", typ)
	}
}

func (s *Store) loadMarkdown(root Root, typ item.Type, category, id, relPath string) (*item.Item, error) {
	full := filepath.Join(root.Path, relPath)
	src, err := os.ReadFile(full)
	if err != nil {
		return nil, kernel.New(kernel.CodeNotFound, "read %s: %v", relPath, err)
	}

	front, _, err := splitFrontMatter(src)
	if err != nil {
		return nil, kernel.New(kernel.CodeInvalidItem, "%s: %v", relPath, err)
	}

	mf := &item.Manifest{}
	switch typ {
	case item.TypeDirective:
		raw := struct {
			item.Manifest `yaml:",inline"`
			Inputs        []item.Input       `yaml:"inputs,omitempty"`
			Process       []item.ProcessStep `yaml:"process,omitempty"`
			Outputs       []item.Input       `yaml:"outputs,omitempty"`
			Refs          []string           `yaml:"refs,omitempty"`
		}{}
		if err := decodeYAML(front, &raw); err != nil {
			return nil, kernel.New(kernel.CodeInvalidItem, "%s: parse frontmatter: %v", relPath, err)
		}
		*mf = raw.Manifest
		mf.Directive = &item.DirectiveManifest{
			Inputs: raw.Inputs, Process: raw.Process, Outputs: raw.Outputs, Refs: raw.Refs,
		}
		if len(mf.Directive.Process) == 0 {
			return nil, kernel.New(kernel.CodeInvalidItem, "directive %s has no process steps", id)
		}
	case item.TypeKnowledge:
		raw := struct {
			item.Manifest `yaml:",inline"`
			ZettelID      string                    `yaml:"zettel_id"`
			EntryType     item.KnowledgeEntryType   `yaml:"entry_type"`
			Relationships []string                  `yaml:"relationships,omitempty"`
		}{}
		if err := decodeYAML(front, &raw); err != nil {
			return nil, kernel.New(kernel.CodeInvalidItem, "%s: parse frontmatter: %v", relPath, err)
		}
		*mf = raw.Manifest
		mf.Knowledge = &item.KnowledgeManifest{
			ZettelID: raw.ZettelID, EntryType: raw.EntryType, Relationships: raw.Relationships,
		}
		if mf.Knowledge.ZettelID == "" {
			return nil, kernel.New(kernel.CodeInvalidItem, "knowledge %s missing zettel_id", id)
		}
	}
	if mf.Category == "" {
		mf.Category = category
	}

	return &item.Item{
		ID: id, Type: typ, Category: category, Origin: root.Origin,
		Manifest: mf, Source: src,
	}, nil
}

func (s *Store) loadTool(root Root, category, id string) (*item.Item, error) {
	dirPath := filepath.Join(root.Path, toolDir(category, id))
	singlePath := filepath.Join(root.Path, toolSingleFile(category, id))

	var manifestPath string
	var files []item.File

	if info, err := os.Stat(dirPath); err == nil && info.IsDir() {
		manifestPath = filepath.Join(dirPath, "tool.yaml")
		entries, err := os.ReadDir(dirPath)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() || e.Name() == "tool.yaml" {
					continue
				}
				data, err := os.ReadFile(filepath.Join(dirPath, e.Name()))
				if err != nil {
					continue
				}
				files = append(files, item.File{Path: e.Name(), Data: data})
			}
		}
	} else {
		manifestPath = singlePath
	}

	src, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, kernel.New(kernel.CodeNotFound, "read tool manifest for %s: %v", id, err)
	}

	raw := struct {
		item.Manifest   `yaml:",inline"`
		ToolType        item.ToolType         `yaml:"tool_type"`
		Executor        string                `yaml:"executor,omitempty"`
		Config          map[string]any        `yaml:"config,omitempty"`
		Parameters      []item.Input          `yaml:"parameters,omitempty"`
		ValidationRules []item.ValidationRule  `yaml:"validation_rules,omitempty"`
	}{}
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, kernel.New(kernel.CodeInvalidItem, "tool %s: parse manifest: %v", id, err)
	}
	if raw.ToolType == "" {
		return nil, kernel.New(kernel.CodeInvalidItem, "tool %s missing tool_type", id)
	}
	if raw.ToolType != item.ToolTypePrimitive && raw.Executor == "" {
		return nil, kernel.New(kernel.CodeInvalidItem, "tool %s missing executor (required for non-primitive tool_type)", id)
	}

	mf := raw.Manifest
	if mf.Category == "" {
		mf.Category = category
	}
	mf.Tool = &item.ToolManifest{
		ToolType: raw.ToolType, Executor: raw.Executor, Config: raw.Config,
		Parameters: raw.Parameters, ValidationRules: raw.ValidationRules,
	}

	return &item.Item{
		ID: id, Type: item.TypeTool, Category: category, Origin: root.Origin,
		Manifest: &mf, Files: files, Source: src,
	}, nil
}
