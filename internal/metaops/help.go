package metaops

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/oklog/ulid/v2"

	"github.com/rakunlabs/kiwimcp/internal/kernel"
)

// guidanceTopics is the static help(action=guidance) content table: an
// entry for search, load, execute and sign, plus the overview, commands
// and agents_md topics.
var guidanceTopics = map[string]string{
	"overview": "kiwi-mcp exposes five meta-operations over MCP: search, load, execute, sign, help. " +
		"Use search to discover directives/tools/knowledge, load to fetch one by id, execute to run a " +
		"tool or walk a directive, sign to re-validate an item after editing it, and help when stuck.",
	"search": "search(item_type, query, source=local|registry|all, strategy=keyword|hybrid|vector|auto) " +
		"ranks items by BM25 keyword score, optionally blended with a vector backend and recency.",
	"load": "load(item_type, item_id, source=project|user|bundled|registry, destination=project|user) " +
		"fetches one item's manifest, files, and signature, optionally copying it into your own layer.",
	"execute": "execute(item_type, action, item_id, parameters, dry_run) runs a tool through its " +
		"executor chain, walks a directive's process steps, or reads a knowledge entry.",
	"sign": "sign(item_type, item_id) recomputes the content hash and rewrites the validated marker " +
		"after you edit an item's source by hand.",
	"commands":  "Meta-operations are invoked as MCP tool calls; there is no separate command surface.",
	"agents_md": "A project's AGENTS.md is not consulted by the kernel itself; directives reference it " +
		"only through their own process steps, the same as any other knowledge ref.",
}

// Help answers the four help sub-actions: guidance (static topic lookup),
// stuck (rising escalation once attempts exceed the threshold), escalate
// (always queues a human decision request), and checkpoint (snapshots
// session state plus the project's current commit, if any).
func (k *Kernel) Help(ctx context.Context, req HelpRequest) (*HelpResponse, error) {
	action := req.Action
	if action == "" {
		action = "guidance"
	}

	switch action {
	case "guidance":
		return k.helpGuidance(req)
	case "stuck":
		return k.helpStuck(req)
	case "escalate":
		return k.helpEscalate(req)
	case "checkpoint":
		return k.helpCheckpoint(req)
	default:
		return nil, kernel.New(kernel.CodeInvalidItem, "unknown help action %q", action)
	}
}

func (k *Kernel) helpGuidance(req HelpRequest) (*HelpResponse, error) {
	topic := req.Topic
	if topic == "" {
		topic = "overview"
	}
	content, ok := guidanceTopics[topic]
	if !ok {
		return nil, kernel.New(kernel.CodeNotFound, "no guidance topic %q", topic).
			WithSuggestion("known topics: overview, search, load, execute, sign, commands, agents_md")
	}
	return &HelpResponse{Content: content}, nil
}

// stuckThreshold is the number of reported attempts "stuck" answers with
// guidance; once attempts exceed it, it signals for human intervention.
const stuckThreshold = 3

func (k *Kernel) helpStuck(req HelpRequest) (*HelpResponse, error) {
	state := k.stateFor(req.Session)
	state.mu.Lock()
	state.attempts++
	attempts := state.attempts
	state.mu.Unlock()

	if req.Attempts > attempts {
		attempts = req.Attempts
	}

	if attempts <= stuckThreshold {
		return &HelpResponse{
			Content: fmt.Sprintf("attempt %d of %d before escalation: re-read the failing item's manifest, "+
				"check execute(dry_run=true) for the merged config, and confirm the input parameters match "+
				"what the tool declares.", attempts, stuckThreshold),
		}, nil
	}

	return &HelpResponse{
		Content:            fmt.Sprintf("repeated failures (%d attempts) on %q: escalating for human review.", attempts, req.Reason),
		SignalAcknowledged: true,
	}, nil
}

func (k *Kernel) helpEscalate(req HelpRequest) (*HelpResponse, error) {
	return &HelpResponse{
		Content:            fmt.Sprintf("escalation queued: %s", req.Reason),
		SignalAcknowledged: true,
		Data:               map[string]any{"options": req.Options, "context": req.Context},
	}, nil
}

func (k *Kernel) helpCheckpoint(req HelpRequest) (*HelpResponse, error) {
	id := ulid.Make().String()
	data := map[string]any{"session": req.Session, "context": req.Context}

	if projectPath, _ := req.Context["project_path"].(string); projectPath != "" {
		if repo, err := git.PlainOpen(projectPath); err == nil {
			if head, err := repo.Head(); err == nil {
				data["commit"] = head.Hash().String()
			}
		}
	}

	return &HelpResponse{
		Content:      "checkpoint recorded",
		CheckpointID: id,
		Data:         data,
	}, nil
}
