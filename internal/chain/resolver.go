// Package chain implements the executor chain resolver: tool → runtime →
// primitive resolution, cycle detection, deep config merging, and
// pre-execution validation.
package chain

import (
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"dario.cat/mergo"

	"github.com/rakunlabs/kiwimcp/internal/content"
	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
)

// Chain is the resolved tool → runtime → primitive sequence for one tool.
type Chain struct {
	IDs          []string // [T, executor(T), ..., primitive], leaf first
	Items        map[string]*item.Item
	MergedConfig map[string]any
	Primitive    string // "subprocess" or "http_client"
}

// Resolver resolves tool ids into chains, memoizing by tool id; versions
// are not part of the cache key.
type Resolver struct {
	store *content.Store

	mu    sync.RWMutex
	cache map[string]*Chain
}

// New builds a Resolver backed by store.
func New(store *content.Store) *Resolver {
	return &Resolver{store: store, cache: make(map[string]*Chain)}
}

// Resolve walks the executor chain starting at tool id, merges configs,
// and validates the result against the terminal primitive's contract.
func (r *Resolver) Resolve(id string) (*Chain, error) {
	if c, ok := r.cached(id); ok {
		return c, nil
	}

	var ids []string
	items := make(map[string]*item.Item)
	visited := make(map[string]bool)

	cur := id
	for {
		if visited[cur] {
			return nil, kernel.New(kernel.CodeChainError, "cycle detected in executor chain: %s -> %s", strings.Join(ids, " -> "), cur).
				WithSuggestion("break the cycle by pointing one tool's executor at a different id")
		}
		visited[cur] = true

		it, err := r.store.Load(item.Key{Type: item.TypeTool, ID: cur})
		if err != nil {
			return nil, kernel.New(kernel.CodeChainError, "resolving chain for %q: %v", id, err)
		}
		if it.Manifest == nil || it.Manifest.Tool == nil {
			return nil, kernel.New(kernel.CodeInvalidItem, "%q is not a tool item", cur)
		}

		ids = append(ids, cur)
		items[cur] = it

		if it.Manifest.Tool.ToolType == item.ToolTypePrimitive {
			break
		}
		if it.Manifest.Tool.Executor == "" {
			return nil, kernel.New(kernel.CodeChainError, "tool %q has no executor and is not a primitive", cur)
		}
		cur = it.Manifest.Tool.Executor
	}

	terminal := ids[len(ids)-1]
	merged, err := mergeConfigs(ids, items)
	if err != nil {
		return nil, err
	}

	if err := validateTerminal(terminal, merged); err != nil {
		return nil, err
	}
	if err := validateCrossLayer(ids, items); err != nil {
		return nil, err
	}
	if err := validateRules(ids, items, merged); err != nil {
		return nil, err
	}

	c := &Chain{IDs: ids, Items: items, MergedConfig: merged, Primitive: terminal}
	r.storeCache(id, c)
	return c, nil
}

// ResolveBatch resolves several tool ids, reusing the content store's
// batch-loading path to avoid N+1 lookups.
func (r *Resolver) ResolveBatch(ids []string) (map[string]*Chain, error) {
	keys := make([]item.Key, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, item.Key{Type: item.TypeTool, ID: id})
	}
	if _, err := r.store.BatchLoad(keys); err != nil {
		return nil, err
	}
	out := make(map[string]*Chain, len(ids))
	for _, id := range ids {
		c, err := r.Resolve(id)
		if err != nil {
			continue
		}
		out[id] = c
	}
	return out, nil
}

func (r *Resolver) cached(id string) (*Chain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cache[id]
	return c, ok
}

func (r *Resolver) storeCache(id string, c *Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[id] = c
}

// mergeConfigs deep-merges the chain's configs walking from the primitive
// back to the leaf, so that the child (closer to the leaf tool) wins on
// scalar conflicts; lists are replaced, not concatenated (mergo's default
// slice behavior with WithOverride matches this exactly).
func mergeConfigs(ids []string, items map[string]*item.Item) (map[string]any, error) {
	merged := map[string]any{}
	for i := len(ids) - 1; i >= 0; i-- {
		cfg := items[ids[i]].Manifest.Tool.Config
		if cfg == nil {
			continue
		}
		if err := mergo.Merge(&merged, map[string]any(deepCopy(cfg)), mergo.WithOverride); err != nil {
			return nil, kernel.New(kernel.CodeChainError, "merging config at %q: %v", ids[i], err)
		}
	}
	return merged, nil
}

// deepCopy performs a shallow-per-level copy sufficient for mergo to treat
// nested maps as independent values rather than aliasing the manifest's
// own config across resolutions.
func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopy(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func validateTerminal(terminal string, merged map[string]any) error {
	switch terminal {
	case "subprocess":
		if s, _ := merged["command"].(string); strings.TrimSpace(s) == "" {
			return kernel.New(kernel.CodeChainError, "resolved chain's terminal primitive 'subprocess' requires 'command'").
				WithSuggestion("add a 'command' field somewhere in the chain's config")
		}
	case "http_client":
		url, _ := merged["url"].(string)
		urlTmpl, _ := merged["url_template"].(string)
		if strings.TrimSpace(url) == "" && strings.TrimSpace(urlTmpl) == "" {
			return kernel.New(kernel.CodeChainError, "resolved chain's terminal primitive 'http_client' requires 'url' or 'url_template'").
				WithSuggestion("add a 'url' or 'url_template' field somewhere in the chain's config")
		}
	default:
		return kernel.New(kernel.CodeChainError, "chain terminates in %q, which is not a known primitive", terminal)
	}
	return nil
}

// validateCrossLayer checks a representative cross-layer conflict:
// a tool asserting venv.enabled=false while its runtime declares
// venv.required=true.
func validateCrossLayer(ids []string, items map[string]*item.Item) error {
	var runtimeRequiresVenv bool
	var leafDisablesVenv bool
	for i, id := range ids {
		cfg := items[id].Manifest.Tool.Config
		venv, ok := cfg["venv"].(map[string]any)
		if !ok {
			continue
		}
		if i < len(ids)-1 { // not the terminal primitive: treat as runtime/leaf layer
			if req, ok := venv["required"].(bool); ok && req {
				runtimeRequiresVenv = true
			}
			if en, ok := venv["enabled"].(bool); ok && !en {
				leafDisablesVenv = true
			}
		}
	}
	if runtimeRequiresVenv && leafDisablesVenv {
		return kernel.New(kernel.CodeChainError, "conflicting venv settings in chain: a tool sets venv.enabled=false while a runtime requires venv.required=true")
	}
	return nil
}

var patternCache = map[string]*regexp.Regexp{}

// validateRules applies each tool's embedded validation.rules against the
// merged config: shebang-required, regex pattern block/warn,
// and syntax-check commands. Block rules abort; a matching warn rule is
// logged via slog and never fails resolution.
func validateRules(ids []string, items map[string]*item.Item, merged map[string]any) error {
	for _, id := range ids {
		rules := items[id].Manifest.Tool.ValidationRules
		for _, rule := range rules {
			switch rule.Kind {
			case "shebang_required":
				script, _ := merged["script"].(string)
				if !strings.HasPrefix(script, "#!") {
					return kernel.New(kernel.CodeInvalidItem, "validation rule %q failed: script missing shebang", rule.Kind)
				}
			case "pattern_block":
				re, err := compilePattern(rule.Pattern)
				if err != nil {
					return kernel.New(kernel.CodeInvalidItem, "invalid validation pattern %q: %v", rule.Pattern, err)
				}
				if cmd, _ := merged["command"].(string); re.MatchString(cmd) {
					msg := rule.Message
					if msg == "" {
						msg = fmt.Sprintf("command matches blocked pattern %q", rule.Pattern)
					}
					return kernel.New(kernel.CodeInvalidItem, msg)
				}
			case "pattern_warn":
				re, err := compilePattern(rule.Pattern)
				if err != nil {
					return kernel.New(kernel.CodeInvalidItem, "invalid validation pattern %q: %v", rule.Pattern, err)
				}
				if cmd, _ := merged["command"].(string); re.MatchString(cmd) {
					slog.Warn("validation rule warning", "tool", id, "pattern", rule.Pattern, "message", rule.Message)
				}
			case "syntax_check":
				if rule.Command != "" {
					if _, err := exec.LookPath(strings.Fields(rule.Command)[0]); err != nil {
						return kernel.New(kernel.CodeInvalidItem, "syntax-check command %q not available: %v", rule.Command, err)
					}
				}
			}
		}
	}
	return nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache[pattern] = re
	return re, nil
}
