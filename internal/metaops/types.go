// Package metaops implements the five MCP meta-operations (search, load,
// execute, sign, help) on top of the content store, chain resolver,
// search engine, permission layer, and signature layer.
package metaops

import (
	"time"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/search"
)

// SearchRequest is the search meta-operation's input.
type SearchRequest struct {
	ItemType    item.Type
	Query       string
	Source      string // local | registry | all, default local
	Limit       int
	Strategy    string // keyword | hybrid | vector | auto, default auto
	ProjectPath string
}

// SearchResponse is the search meta-operation's output.
type SearchResponse struct {
	Items      []search.Result `json:"items"`
	SearchType string          `json:"search_type"`
	Quality    string          `json:"quality"`
	Total      int             `json:"total"`
}

// LoadRequest is the load meta-operation's input.
type LoadRequest struct {
	ItemType    item.Type
	ItemID      string
	Source      string // project | user | bundled | registry
	Destination string // "" | project | user
	ProjectPath string
}

// LoadResponse is the load meta-operation's output.
type LoadResponse struct {
	Manifest  *item.Manifest   `json:"manifest"`
	Files     []item.File      `json:"files,omitempty"`
	Signature *item.Signature  `json:"signature,omitempty"`
	CopiedTo  string           `json:"copied_to,omitempty"`
}

// ExecuteRequest is the execute meta-operation's input.
type ExecuteRequest struct {
	ItemType    item.Type // directive | tool | knowledge | system
	Action      string
	ItemID      string
	Parameters  map[string]any
	ProjectPath string
	DryRun      bool

	// Session identifies the calling agent's session for rate-limit and
	// loop-detector state. The MCP shell fills it from the client's
	// "session" tool-call argument; state only accumulates, and
	// loop/rate-limit checks only mean anything, when the client reuses
	// the same id across its execute() calls.
	Session string
}

// ExecuteResponse is the execute meta-operation's output.
type ExecuteResponse struct {
	Status   string         `json:"status"` // ok | error
	Data     map[string]any `json:"data,omitempty"`
	Error    *ExecuteError  `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecuteError is the structured failure shape embedded in ExecuteResponse.
type ExecuteError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// ExecutionResult is the shape every tool `run` produces, whether
// executed live or returned via dry_run.
type ExecutionResult struct {
	Success       bool     `json:"success"`
	Output        any      `json:"output,omitempty"`
	Error         string   `json:"error,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
	ExecutorChain []string `json:"executor_chain"`
}

// SignRequest is the sign meta-operation's input.
type SignRequest struct {
	ItemType    item.Type
	ItemID      string
	ProjectPath string
}

// SignResponse is the sign meta-operation's output.
type SignResponse struct {
	Status    string        `json:"status"`
	Signature SignatureInfo `json:"signature"`
}

// SignatureInfo is the hash/timestamp pair surfaced to callers.
type SignatureInfo struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// HelpRequest is the help meta-operation's input.
type HelpRequest struct {
	Action   string // guidance | stuck | escalate | checkpoint, default guidance
	Topic    string
	Reason   string
	Attempts int
	Options  []string
	Context  map[string]any
	Session  string
}

// HelpResponse is the help meta-operation's output.
type HelpResponse struct {
	Content           string         `json:"content,omitempty"`
	SignalAcknowledged bool          `json:"signal_acknowledged,omitempty"`
	CheckpointID      string         `json:"checkpoint_id,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}
