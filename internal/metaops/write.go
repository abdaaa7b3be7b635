package metaops

import (
	"fmt"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"gopkg.in/yaml.v3"
)

// writeItemFromParams builds a new or updated item from req.Parameters
// and writes it to the content store, in whichever layer "destination"
// names (default project). Protected-prefix categories are rejected the
// same way Load rejects copying into them.
func (k *Kernel) writeItemFromParams(req ExecuteRequest, typ item.Type) (*ExecuteResponse, error) {
	category, _ := req.Parameters["category"].(string)
	if category == "" {
		category = "general"
	}
	if k.Store.IsProtectedCategory(typ, category) {
		return errResponse(kernel.New(kernel.CodeInvalidItem, "category %q is protected and cannot be written to", category)), nil
	}

	origin := item.OriginProject
	if dest, _ := req.Parameters["destination"].(string); dest == "user" {
		origin = item.OriginUser
	}

	src, err := buildSource(typ, req.ItemID, category, req.Parameters)
	if err != nil {
		return errResponse(kernel.New(kernel.CodeInvalidItem, "%v", err)), nil
	}

	target := &item.Item{ID: req.ItemID, Type: typ, Category: category, Origin: origin}
	if err := k.Store.WriteItemSource(target, src); err != nil {
		return errResponse(kernel.New(kernel.CodeExecutionFailed, "writing %s: %v", req.ItemID, err)), nil
	}
	return okResponse(map[string]any{"id": req.ItemID, "type": string(typ), "category": category, "origin": string(origin)}, nil), nil
}

// deleteItem removes an item from the content store. Only the origin it
// actually resolves from is touched; a protected-prefix item can never be
// deleted through this path since it always resolves from bundled.
func (k *Kernel) deleteItem(req ExecuteRequest, typ item.Type) (*ExecuteResponse, error) {
	it, err := k.Store.Load(item.Key{Type: typ, ID: req.ItemID})
	if err != nil {
		return errResponse(asKernelError(err)), nil
	}
	if it.Origin == item.OriginBundled {
		return errResponse(kernel.New(kernel.CodeInvalidItem, "%s resolves from the bundled root and cannot be deleted", req.ItemID)), nil
	}
	if err := k.Store.Delete(it); err != nil {
		return errResponse(kernel.New(kernel.CodeExecutionFailed, "deleting %s: %v", req.ItemID, err)), nil
	}
	return okResponse(map[string]any{"id": req.ItemID, "deleted": true}, nil), nil
}

type markdownManifest struct {
	item.Manifest `yaml:",inline"`
	Inputs        []item.Input       `yaml:"inputs,omitempty"`
	Process       []item.ProcessStep `yaml:"process,omitempty"`
	Outputs       []item.Input       `yaml:"outputs,omitempty"`
	Refs          []string           `yaml:"refs,omitempty"`
	ZettelID      string             `yaml:"zettel_id,omitempty"`
	EntryType     item.KnowledgeEntryType `yaml:"entry_type,omitempty"`
	Relationships []string           `yaml:"relationships,omitempty"`
}

type toolManifestRaw struct {
	item.Manifest   `yaml:",inline"`
	ToolType        item.ToolType        `yaml:"tool_type"`
	Executor        string               `yaml:"executor,omitempty"`
	Config          map[string]any       `yaml:"config,omitempty"`
	Parameters      []item.Input         `yaml:"parameters,omitempty"`
	ValidationRules []item.ValidationRule `yaml:"validation_rules,omitempty"`
}

// buildSource serializes req.Parameters into the on-disk shape loadMarkdown
// and loadTool expect: YAML frontmatter plus a markdown body for directives
// and knowledge, a bare YAML document for tools.
func buildSource(typ item.Type, id, category string, params map[string]any) ([]byte, error) {
	title, _ := params["title"].(string)
	if title == "" {
		title = id
	}
	description, _ := params["description"].(string)

	switch typ {
	case item.TypeDirective:
		mf := markdownManifest{
			Manifest: item.Manifest{
				Title: title, Description: description, Category: category,
				Tags: stringSlice(params["tags"]), CreatedAt: time.Now().UTC(),
			},
			Inputs:  decodeInputs(params["inputs"]),
			Process: decodeSteps(params["process"]),
			Outputs: decodeInputs(params["outputs"]),
			Refs:    stringSlice(params["refs"]),
		}
		if len(mf.Process) == 0 {
			return nil, fmt.Errorf("directive %s requires at least one process step", id)
		}
		body, _ := params["content"].(string)
		return marshalMarkdown(mf, body)
	case item.TypeKnowledge:
		zettelID, _ := params["zettel_id"].(string)
		if zettelID == "" {
			zettelID = id
		}
		entryType, _ := params["entry_type"].(string)
		mf := markdownManifest{
			Manifest: item.Manifest{
				Title: title, Description: description, Category: category,
				Tags: stringSlice(params["tags"]), CreatedAt: time.Now().UTC(),
			},
			ZettelID:      zettelID,
			EntryType:     item.KnowledgeEntryType(entryType),
			Relationships: stringSlice(params["relationships"]),
		}
		body, _ := params["content"].(string)
		return marshalMarkdown(mf, body)
	case item.TypeTool:
		toolType, _ := params["tool_type"].(string)
		if toolType == "" {
			return nil, fmt.Errorf("tool %s requires tool_type", id)
		}
		executor, _ := params["executor"].(string)
		if item.ToolType(toolType) != item.ToolTypePrimitive && executor == "" {
			return nil, fmt.Errorf("tool %s requires executor for tool_type %q", id, toolType)
		}
		config, _ := params["config"].(map[string]any)
		raw := toolManifestRaw{
			Manifest: item.Manifest{
				Title: title, Description: description, Category: category,
				Tags: stringSlice(params["tags"]), CreatedAt: time.Now().UTC(),
			},
			ToolType:   item.ToolType(toolType),
			Executor:   executor,
			Config:     config,
			Parameters: decodeInputs(params["parameters"]),
		}
		return yaml.Marshal(raw)
	default:
		return nil, fmt.Errorf("unsupported item type %q", typ)
	}
}

func marshalMarkdown(mf markdownManifest, body string) ([]byte, error) {
	front, err := yaml.Marshal(mf)
	if err != nil {
		return nil, err
	}
	out := "---\n" + string(front) + "---\n"
	if body != "" {
		out += "\n" + body + "\n"
	}
	return []byte(out), nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func decodeInputs(v any) []item.Input {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]item.Input, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		in := item.Input{}
		in.Name, _ = m["name"].(string)
		in.Type, _ = m["type"].(string)
		in.Required, _ = m["required"].(bool)
		in.Default = m["default"]
		in.Description, _ = m["description"].(string)
		out = append(out, in)
	}
	return out
}

func decodeSteps(v any) []item.ProcessStep {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]item.ProcessStep, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		step := item.ProcessStep{Order: i + 1}
		if o, ok := m["order"].(int); ok {
			step.Order = o
		}
		step.Name, _ = m["name"].(string)
		step.Description, _ = m["description"].(string)
		step.Refs = stringSlice(m["refs"])
		if attrs, ok := m["attrs"].(map[string]any); ok {
			step.Attrs = attrs
		}
		out = append(out, step)
	}
	return out
}
