// Package item defines the kernel's shared data model: items, manifests,
// and the type-specific fields each of the three item kinds carries.
package item

import "time"

// Type is one of the three item kinds the kernel owns.
type Type string

const (
	TypeDirective Type = "directive"
	TypeTool      Type = "tool"
	TypeKnowledge Type = "knowledge"
)

// Origin records which content root an item was resolved from.
type Origin string

const (
	OriginProject  Origin = "project"
	OriginUser     Origin = "user"
	OriginBundled  Origin = "bundled"
	OriginRegistry Origin = "registry"
)

// File is a single file belonging to a multi-file tool item, keyed by its
// path relative to the item's directory.
type File struct {
	Path string
	Data []byte
}

// Signature is the parsed form of an item's first-line marker, see
// internal/signature.
type Signature struct {
	Timestamp time.Time
	Hash      string
	Sig       string // optional base64 asymmetric signature
}

// Item is a single unit of content, unique by (Type, ID). Items are
// immutable once signed; any byte edit outside the signature line
// invalidates Signature.
type Item struct {
	ID       string
	Version  string
	Type     Type
	Category string
	Origin   Origin

	Manifest *Manifest
	Files    []File
	Source   []byte // raw source form, signature line included

	Signature *Signature
}

// Manifest carries the metadata common to every item type plus the
// type-specific payload in one of the pointer fields below.
type Manifest struct {
	Title       string            `yaml:"title" json:"title"`
	Description string            `yaml:"description" json:"description"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Category    string            `yaml:"category,omitempty" json:"category,omitempty"`
	Author      string            `yaml:"author,omitempty" json:"author,omitempty"`
	CreatedAt   time.Time         `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	ValidatedAt time.Time         `yaml:"validated_at,omitempty" json:"validated_at,omitempty"`
	Permissions []PermissionRule  `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Extra       map[string]any    `yaml:"-" json:"-"`

	Directive *DirectiveManifest `yaml:"-" json:"directive,omitempty"`
	Tool      *ToolManifest      `yaml:"-" json:"tool,omitempty"`
	Knowledge *KnowledgeManifest `yaml:"-" json:"knowledge,omitempty"`
}

// PermissionRule is one declarative rule from an item's <permissions>
// block. See internal/permission for runtime enforcement.
type PermissionRule struct {
	Kind     string `yaml:"kind" json:"kind"` // read | write | execute | deny
	Resource string `yaml:"resource" json:"resource"`
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Action   string `yaml:"action,omitempty" json:"action,omitempty"`
	Allow    string `yaml:"allow,omitempty" json:"allow,omitempty"` // not read by the permission layer; a shell rule's comma-separated allow-list is taken from Path
}

// Input is a single typed, optionally-required, optionally-constrained
// directive or tool input.
type Input struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ProcessStep is one ordered step of a directive's workflow body.
type ProcessStep struct {
	Order       int            `yaml:"order" json:"order"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Refs        []string       `yaml:"refs,omitempty" json:"refs,omitempty"`
	Attrs       map[string]any `yaml:"attrs,omitempty" json:"attrs,omitempty"`
}

// DirectiveManifest is the type-specific payload for a directive item.
type DirectiveManifest struct {
	Inputs  []Input       `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Process []ProcessStep `yaml:"process,omitempty" json:"process,omitempty"`
	Outputs []Input       `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Refs    []string      `yaml:"refs,omitempty" json:"refs,omitempty"`
}

// ToolType enumerates the kinds of tool manifest.
type ToolType string

const (
	ToolTypePrimitive ToolType = "primitive"
	ToolTypeRuntime   ToolType = "runtime"
	ToolTypeScript    ToolType = "script"
	ToolTypeHTTP      ToolType = "http"
	ToolTypeMCPServer ToolType = "mcp_server"
)

// ValidationRule is one embedded additional-validation rule applied to a
// runtime's merged config before execution.
type ValidationRule struct {
	Kind    string `yaml:"kind" json:"kind"` // shebang_required | pattern_block | pattern_warn | syntax_check
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ToolManifest is the type-specific payload for a tool item.
type ToolManifest struct {
	ToolType        ToolType         `yaml:"tool_type" json:"tool_type"`
	Executor        string           `yaml:"executor,omitempty" json:"executor,omitempty"` // nil/"" only for primitives
	Config          map[string]any   `yaml:"config,omitempty" json:"config,omitempty"`
	Parameters      []Input          `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	ValidationRules []ValidationRule `yaml:"validation_rules,omitempty" json:"validation_rules,omitempty"`
}

// KnowledgeEntryType enumerates the zettelkasten-style entry kinds.
type KnowledgeEntryType string

const (
	EntryConcept         KnowledgeEntryType = "concept"
	EntryPattern          KnowledgeEntryType = "pattern"
	EntryProcedure        KnowledgeEntryType = "procedure"
	EntryTemplate         KnowledgeEntryType = "template"
	EntryTroubleshooting  KnowledgeEntryType = "troubleshooting"
	EntryReference        KnowledgeEntryType = "reference"
)

// KnowledgeManifest is the type-specific payload for a knowledge item.
type KnowledgeManifest struct {
	ZettelID      string             `yaml:"zettel_id" json:"zettel_id"`
	EntryType     KnowledgeEntryType `yaml:"entry_type" json:"entry_type"`
	Relationships []string           `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

// Key identifies an item uniquely within the content store.
type Key struct {
	Type    Type
	ID      string
	Version string // empty means "latest"
}
