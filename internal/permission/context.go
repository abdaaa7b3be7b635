// Package permission implements the kernel's declarative permission
// model, runtime enforcement, rate limiting, loop detection, and the
// append-only audit log.
package permission

import (
	"path/filepath"
	"strings"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

// Context is the effective set of resource/action rules in force for
// one execution session, materialized from an item's declared rules.
type Context struct {
	rules []item.PermissionRule
}

// New materializes a Context from an item's declared permission rules.
func New(rules []item.PermissionRule) *Context {
	cp := make([]item.PermissionRule, len(rules))
	copy(cp, rules)
	return &Context{rules: cp}
}

// Call describes one primitive operation a permission Context must
// authorize before it runs.
type Call struct {
	Kind    string // "filesystem.read" | "filesystem.write" | "shell.run" | "tool.run" | "mcp.call" | "kiwi-mcp.call"
	Path    string // for filesystem calls
	Command string // base command, for shell.run
	ToolID  string // for tool.run
	MCPName string // for mcp.call
	Action  string // kiwi-mcp action name, for kiwi-mcp.call
}

// Decision is the outcome of checking one Call against a Context.
type Decision struct {
	Allowed bool
	Rule    string // human-readable rule that produced the decision
}

// Check evaluates call against ctx's rules. An absent allow rule is
// already a deny; an explicit `deny` rule always wins over a matching
// `read`/`write`/`execute` rule, regardless of declaration order.
func (c *Context) Check(call Call) Decision {
	for _, r := range c.rules {
		if r.Kind == "deny" && matchesDeny(r, call) {
			return Decision{Allowed: false, Rule: describeRule(r)}
		}
	}
	for _, r := range c.rules {
		if r.Kind != "deny" && matchesPositive(r, call) {
			return Decision{Allowed: true, Rule: describeRule(r)}
		}
	}
	return Decision{Allowed: false, Rule: "no matching allow rule for " + call.Kind}
}

// matchesPositive matches a read/write/execute rule against call.
func matchesPositive(r item.PermissionRule, call Call) bool {
	switch call.Kind {
	case "filesystem.read":
		return r.Kind == "read" && r.Resource == "filesystem" && pathMatches(r.Path, call.Path)
	case "filesystem.write":
		return r.Kind == "write" && r.Resource == "filesystem" && pathMatches(r.Path, call.Path)
	case "shell.run":
		return r.Kind == "execute" && r.Resource == "shell" && allowListMatches(call.Command, r)
	case "tool.run":
		return r.Kind == "execute" && r.Resource == "tool" && r.ID == call.ToolID
	case "mcp.call":
		return r.Kind == "execute" && r.Resource == "mcp" && r.ID == call.MCPName
	case "kiwi-mcp.call":
		return r.Kind == "execute" && r.Resource == "kiwi-mcp" && (r.Action == "" || r.Action == call.Action)
	default:
		return false
	}
}

// matchesDeny matches a `deny` rule against call, ignoring the
// read/write distinction on its resource (a filesystem deny blocks both).
func matchesDeny(r item.PermissionRule, call Call) bool {
	if r.Kind != "deny" {
		return false
	}
	switch call.Kind {
	case "filesystem.read", "filesystem.write":
		return r.Resource == "filesystem" && pathMatches(r.Path, call.Path)
	case "shell.run":
		return r.Resource == "shell" && allowListMatches(call.Command, r)
	case "tool.run":
		return r.Resource == "tool" && r.ID == call.ToolID
	case "mcp.call":
		return r.Resource == "mcp" && r.ID == call.MCPName
	case "kiwi-mcp.call":
		return r.Resource == "kiwi-mcp" && (r.Action == "" || r.Action == call.Action)
	default:
		return false
	}
}

func pathMatches(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	ok, err := filepath.Match(pattern, path)
	if err == nil && ok {
		return true
	}
	// support "**" directory-spanning globs, which filepath.Match cannot express directly
	if strings.Contains(pattern, "**") {
		prefix := strings.SplitN(pattern, "**", 2)[0]
		return strings.HasPrefix(path, prefix)
	}
	return false
}

func allowListMatches(command string, r item.PermissionRule) bool {
	for _, allowed := range strings.Split(r.Path, ",") {
		if strings.TrimSpace(allowed) == command {
			return true
		}
	}
	return false
}

func describeRule(r item.PermissionRule) string {
	if r.Path != "" {
		return r.Kind + " " + r.Resource + " " + r.Path
	}
	if r.ID != "" {
		return r.Kind + " " + r.Resource + " " + r.ID
	}
	return r.Kind + " " + r.Resource
}

// Intersect produces the effective permission set for a child execution
// context: every child rule the parent cannot also grant is silently
// dropped (spec's "intersection on recursion"); deny rules from either
// side are preserved since a deny can only narrow, never widen, access.
// A shell rule's comma-separated allow-list is narrowed command by
// command rather than kept or dropped as a whole, so a child cannot
// smuggle in commands the parent never granted by bundling them
// alongside one the parent does allow.
func (c *Context) Intersect(child *Context) *Context {
	var effective []item.PermissionRule
	for _, r := range child.rules {
		if r.Kind == "deny" {
			effective = append(effective, r)
			continue
		}
		if r.Resource == "shell" {
			if narrowed, ok := c.narrowShellRule(r); ok {
				effective = append(effective, narrowed)
			}
			continue
		}
		if c.grants(r) {
			effective = append(effective, r)
		}
	}
	for _, r := range c.rules {
		if r.Kind == "deny" {
			effective = append(effective, r)
		}
	}
	return &Context{rules: effective}
}

// narrowShellRule keeps only the commands in r's allow-list that c
// itself would grant. Reports ok=false if none of r's commands survive,
// meaning the rule contributes nothing to the child's effective context.
func (c *Context) narrowShellRule(r item.PermissionRule) (item.PermissionRule, bool) {
	var kept []string
	for _, cmd := range strings.Split(r.Path, ",") {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if c.Check(Call{Kind: "shell.run", Command: cmd}).Allowed {
			kept = append(kept, cmd)
		}
	}
	if len(kept) == 0 {
		return item.PermissionRule{}, false
	}
	narrowed := r
	narrowed.Path = strings.Join(kept, ",")
	return narrowed, true
}

// grants reports whether the parent context would allow the exact rule
// r on its own, used to test whether a child may keep a declared rule.
func (c *Context) grants(r item.PermissionRule) bool {
	call := callFromRule(r)
	d := c.Check(call)
	return d.Allowed
}

func callFromRule(r item.PermissionRule) Call {
	switch {
	case r.Resource == "filesystem" && r.Kind == "read":
		return Call{Kind: "filesystem.read", Path: r.Path}
	case r.Resource == "filesystem" && r.Kind == "write":
		return Call{Kind: "filesystem.write", Path: r.Path}
	case r.Resource == "tool":
		return Call{Kind: "tool.run", ToolID: r.ID}
	case r.Resource == "mcp":
		return Call{Kind: "mcp.call", MCPName: r.ID}
	case r.Resource == "kiwi-mcp":
		return Call{Kind: "kiwi-mcp.call", Action: r.Action}
	default:
		return Call{Kind: "unknown"}
	}
}
