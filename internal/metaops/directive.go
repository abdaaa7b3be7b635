package metaops

import (
	"context"
	"runtime"

	"github.com/gomarkdown/markdown"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"github.com/rakunlabs/kiwimcp/internal/render"
)

func (k *Kernel) executeDirective(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	switch req.Action {
	case "run":
		it, err := k.Store.Load(item.Key{Type: item.TypeDirective, ID: req.ItemID})
		if err != nil {
			return errResponse(asKernelError(err)), nil
		}
		// The kernel never interprets a directive's steps itself; it
		// always hands back the structured spec for the calling agent
		// to walk step by step. Step descriptions may carry Go template
		// references to the invocation's parameters (e.g. "review
		// {{ .pr_number }}"); those get resolved here since the calling
		// agent has no access to req.Parameters once the step is handed
		// back as plain data.
		steps := renderProcessSteps(it.Manifest.Directive.Process, req.Parameters)
		return okResponse(map[string]any{
			"manifest": it.Manifest,
			"process":  steps,
			"inputs":   it.Manifest.Directive.Inputs,
			"outputs":  it.Manifest.Directive.Outputs,
		}, nil), nil
	case "create", "edit":
		return k.writeItemFromParams(req, item.TypeDirective)
	case "delete":
		return k.deleteItem(req, item.TypeDirective)
	default:
		return errResponse(kernel.New(kernel.CodeInvalidItem, "unknown directive action %q", req.Action)), nil
	}
}

// renderProcessSteps templates each step's description against params
// using the same Go-template function set (sprig-backed mugo funcs) the
// rest of the kernel's rendering goes through. A step with no template
// references, or one that fails to render, is returned unchanged: a
// directive body is free-form prose, and a bad reference shouldn't block
// the whole run from being returned to the calling agent.
func renderProcessSteps(steps []item.ProcessStep, params map[string]any) []item.ProcessStep {
	if len(params) == 0 {
		return steps
	}
	out := make([]item.ProcessStep, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Description == "" {
			continue
		}
		if rendered, err := render.ExecuteWithFuncs(s.Description, params, map[string]any{}); err == nil {
			out[i].Description = string(rendered)
		}
	}
	return out
}

func (k *Kernel) executeKnowledge(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	switch req.Action {
	case "read":
		it, err := k.Store.Load(item.Key{Type: item.TypeKnowledge, ID: req.ItemID})
		if err != nil {
			return errResponse(asKernelError(err)), nil
		}
		return okResponse(map[string]any{
			"manifest": it.Manifest,
			"content":  string(it.Source),
			// Pre-rendered so a caller displaying the entry doesn't need
			// its own Markdown renderer just to show a zettel's body.
			"html": string(markdown.ToHTML(it.Source, nil, nil)),
		}, nil), nil
	case "create", "update":
		return k.writeItemFromParams(req, item.TypeKnowledge)
	case "delete":
		return k.deleteItem(req, item.TypeKnowledge)
	default:
		return errResponse(kernel.New(kernel.CodeInvalidItem, "unknown knowledge action %q", req.Action)), nil
	}
}

// executeSystem answers the virtual, read-only system pseudo-items:
// paths, runtime, rag, mcp. None of these touch the content store.
func (k *Kernel) executeSystem(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	switch req.ItemID {
	case "paths":
		paths := map[string]any{}
		if p, ok := k.Store.RootPath(item.OriginProject); ok {
			paths["project"] = p
		}
		if p, ok := k.Store.RootPath(item.OriginUser); ok {
			paths["user"] = p
		}
		if p, ok := k.Store.RootPath(item.OriginBundled); ok {
			paths["bundled"] = p
		}
		return okResponse(paths, nil), nil
	case "runtime":
		return okResponse(map[string]any{
			"go_version": runtime.Version(),
			"goos":       runtime.GOOS,
			"goarch":     runtime.GOARCH,
			"num_cpu":    runtime.NumCPU(),
		}, nil), nil
	case "rag":
		available := k.Hybrid != nil && k.Hybrid.Vector != nil && k.Hybrid.Vector.IsAvailable()
		data := map[string]any{"vector_backend_available": available}
		if available {
			data["dimension"] = k.Hybrid.Vector.Dimension()
		}
		return okResponse(data, nil), nil
	case "mcp":
		return okResponse(map[string]any{
			"operations": []string{"search", "load", "execute", "sign", "help"},
		}, nil), nil
	default:
		return errResponse(kernel.New(kernel.CodeNotFound, "unknown system pseudo-item %q", req.ItemID)), nil
	}
}
