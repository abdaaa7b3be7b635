package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/metaops"
)

// toolHandler executes one of the five meta-operations against raw
// JSON-RPC tool/call arguments.
type toolHandler func(ctx context.Context, k *metaops.Kernel, raw json.RawMessage) (*ToolsCallResult, error)

type toolSpec struct {
	name        string
	description string
	schema      json.RawMessage
	handler     toolHandler
}

func rawSchema(properties string, required string) json.RawMessage {
	if required == "" {
		return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":%s}`, properties))
	}
	return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":%s,"required":%s}`, properties, required))
}

var toolSpecs = []toolSpec{
	{
		name:        "search",
		description: "Search for directives, tools, and knowledge entries by keyword, with optional hybrid/vector ranking and registry blending.",
		schema: rawSchema(`{
			"item_type":{"type":"string","enum":["directive","tool","knowledge"]},
			"query":{"type":"string"},
			"source":{"type":"string","enum":["local","registry","all"]},
			"limit":{"type":"integer"},
			"strategy":{"type":"string","enum":["keyword","hybrid","vector","auto"]},
			"project_path":{"type":"string"}
		}`, `["query"]`),
		handler: handleSearch,
	},
	{
		name:        "load",
		description: "Fetch one item's manifest and content from the project, user, bundled, or registry layer, optionally copying it down into the project or user layer.",
		schema: rawSchema(`{
			"item_type":{"type":"string","enum":["directive","tool","knowledge"]},
			"item_id":{"type":"string"},
			"source":{"type":"string","enum":["project","user","bundled","registry"]},
			"destination":{"type":"string","enum":["project","user"]},
			"project_path":{"type":"string"}
		}`, `["item_type","item_id"]`),
		handler: handleLoad,
	},
	{
		name:        "execute",
		description: "Run, create, edit, or delete a directive/tool/knowledge item, or query a read-only system pseudo-item (paths, runtime, rag, mcp).",
		schema: rawSchema(`{
			"item_type":{"type":"string","enum":["directive","tool","knowledge","system"]},
			"action":{"type":"string"},
			"item_id":{"type":"string"},
			"parameters":{"type":"object"},
			"project_path":{"type":"string"},
			"dry_run":{"type":"boolean"},
			"session":{"type":"string"}
		}`, `["item_type","action"]`),
		handler: handleExecute,
	},
	{
		name:        "sign",
		description: "Canonicalize and hash an item's source, stamping a kiwi-mcp:validated marker (optionally Ed25519-signed) back onto it.",
		schema: rawSchema(`{
			"item_type":{"type":"string","enum":["directive","tool","knowledge"]},
			"item_id":{"type":"string"},
			"project_path":{"type":"string"}
		}`, `["item_type","item_id"]`),
		handler: handleSign,
	},
	{
		name:        "help",
		description: "Ask for guidance on a topic, signal being stuck after repeated failures, escalate to a human, or record a checkpoint.",
		schema: rawSchema(`{
			"action":{"type":"string","enum":["guidance","stuck","escalate","checkpoint"]},
			"topic":{"type":"string"},
			"reason":{"type":"string"},
			"attempts":{"type":"integer"},
			"options":{"type":"array","items":{"type":"string"}},
			"context":{"type":"object"},
			"session":{"type":"string"}
		}`, ``),
		handler: handleHelp,
	},
}

func toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(toolSpecs))
	for _, s := range toolSpecs {
		defs = append(defs, ToolDefinition{Name: s.name, Description: s.description, InputSchema: s.schema})
	}
	return defs
}

func toolByName(name string) *toolSpec {
	for i := range toolSpecs {
		if toolSpecs[i].name == name {
			return &toolSpecs[i]
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

type searchArgs struct {
	ItemType    item.Type `json:"item_type"`
	Query       string    `json:"query"`
	Source      string    `json:"source"`
	Limit       int       `json:"limit"`
	Strategy    string    `json:"strategy"`
	ProjectPath string    `json:"project_path"`
}

func handleSearch(ctx context.Context, k *metaops.Kernel, raw json.RawMessage) (*ToolsCallResult, error) {
	var a searchArgs
	if err := decodeArgs(raw, &a); err != nil {
		return errorResult(fmt.Sprintf("invalid search arguments: %v", err)), nil
	}
	resp, err := k.Search(ctx, metaops.SearchRequest{
		ItemType: a.ItemType, Query: a.Query, Source: a.Source,
		Limit: a.Limit, Strategy: a.Strategy, ProjectPath: a.ProjectPath,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(resp)
}

type loadArgs struct {
	ItemType    item.Type `json:"item_type"`
	ItemID      string    `json:"item_id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	ProjectPath string    `json:"project_path"`
}

func handleLoad(ctx context.Context, k *metaops.Kernel, raw json.RawMessage) (*ToolsCallResult, error) {
	var a loadArgs
	if err := decodeArgs(raw, &a); err != nil {
		return errorResult(fmt.Sprintf("invalid load arguments: %v", err)), nil
	}
	resp, err := k.Load(ctx, metaops.LoadRequest{
		ItemType: a.ItemType, ItemID: a.ItemID, Source: a.Source,
		Destination: a.Destination, ProjectPath: a.ProjectPath,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("load failed: %v", err)), nil
	}
	return jsonResult(resp)
}

type executeArgs struct {
	ItemType    item.Type      `json:"item_type"`
	Action      string         `json:"action"`
	ItemID      string         `json:"item_id"`
	Parameters  map[string]any `json:"parameters"`
	ProjectPath string         `json:"project_path"`
	DryRun      bool           `json:"dry_run"`
	Session     string         `json:"session"`
}

func handleExecute(ctx context.Context, k *metaops.Kernel, raw json.RawMessage) (*ToolsCallResult, error) {
	var a executeArgs
	if err := decodeArgs(raw, &a); err != nil {
		return errorResult(fmt.Sprintf("invalid execute arguments: %v", err)), nil
	}
	resp, err := k.Execute(ctx, metaops.ExecuteRequest{
		ItemType: a.ItemType, Action: a.Action, ItemID: a.ItemID,
		Parameters: a.Parameters, ProjectPath: a.ProjectPath, DryRun: a.DryRun,
		Session: a.Session,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("execute failed: %v", err)), nil
	}
	result, jerr := jsonResult(resp)
	if jerr != nil {
		return nil, jerr
	}
	result.IsError = resp.Status == "error"
	return result, nil
}

type signArgs struct {
	ItemType    item.Type `json:"item_type"`
	ItemID      string    `json:"item_id"`
	ProjectPath string    `json:"project_path"`
}

func handleSign(ctx context.Context, k *metaops.Kernel, raw json.RawMessage) (*ToolsCallResult, error) {
	var a signArgs
	if err := decodeArgs(raw, &a); err != nil {
		return errorResult(fmt.Sprintf("invalid sign arguments: %v", err)), nil
	}
	resp, err := k.Sign(ctx, metaops.SignRequest{ItemType: a.ItemType, ItemID: a.ItemID, ProjectPath: a.ProjectPath})
	if err != nil {
		return errorResult(fmt.Sprintf("sign failed: %v", err)), nil
	}
	return jsonResult(resp)
}

type helpArgs struct {
	Action   string         `json:"action"`
	Topic    string         `json:"topic"`
	Reason   string         `json:"reason"`
	Attempts int            `json:"attempts"`
	Options  []string       `json:"options"`
	Context  map[string]any `json:"context"`
	Session  string         `json:"session"`
}

func handleHelp(ctx context.Context, k *metaops.Kernel, raw json.RawMessage) (*ToolsCallResult, error) {
	var a helpArgs
	if err := decodeArgs(raw, &a); err != nil {
		return errorResult(fmt.Sprintf("invalid help arguments: %v", err)), nil
	}
	resp, err := k.Help(ctx, metaops.HelpRequest{
		Action: a.Action, Topic: a.Topic, Reason: a.Reason, Attempts: a.Attempts,
		Options: a.Options, Context: a.Context, Session: a.Session,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("help failed: %v", err)), nil
	}
	return jsonResult(resp)
}
