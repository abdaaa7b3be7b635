package metaops

import (
	"context"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"github.com/rakunlabs/kiwimcp/internal/signature"
)

// Load fetches one item from the requested source, optionally copying
// it into the project or user layer.
func (k *Kernel) Load(ctx context.Context, req LoadRequest) (*LoadResponse, error) {
	var it *item.Item
	var err error

	switch req.Source {
	case "registry":
		if k.Registry == nil {
			return nil, kernel.New(kernel.CodeNotFound, "no registry configured")
		}
		entry, rerr := k.Registry.Fetch(ctx, req.ItemID, "")
		if rerr != nil {
			return nil, kernel.New(kernel.CodeExecutionFailed, "registry fetch failed: %v", rerr)
		}
		if entry == nil || entry.Item == nil {
			return nil, kernel.New(kernel.CodeNotFound, "item %s not found in registry", req.ItemID)
		}
		it = entry.Item
		if verr := signature.Verify(it.Source, signature.VerifyOptions{Required: true, PublicKey: k.VerifyKey}); verr != nil {
			return nil, verr
		}
	case "":
		it, err = k.Store.Load(item.Key{Type: req.ItemType, ID: req.ItemID})
		if err != nil {
			return nil, err
		}
	case "project", "user", "bundled":
		it, err = k.Store.LoadFromOrigin(item.Key{Type: req.ItemType, ID: req.ItemID}, item.Origin(req.Source))
		if err != nil {
			return nil, err
		}
	default:
		return nil, kernel.New(kernel.CodeInvalidItem, "unknown load source %q", req.Source)
	}

	resp := &LoadResponse{Manifest: it.Manifest, Files: it.Files, Signature: it.Signature}

	if req.Destination == "" {
		return resp, nil
	}
	if req.Destination != "project" && req.Destination != "user" {
		return nil, kernel.New(kernel.CodeInvalidItem, "destination must be 'project' or 'user', got %q", req.Destination)
	}
	if k.Store.IsProtectedCategory(it.Type, it.Category) {
		return nil, kernel.New(kernel.CodeInvalidItem, "item %s is under a protected prefix and cannot be copied into %s", it.ID, req.Destination).
			WithSuggestion("protected-prefix items always resolve from the bundled root")
	}

	destOrigin := item.OriginProject
	if req.Destination == "user" {
		destOrigin = item.OriginUser
	}
	copyTarget := &item.Item{ID: it.ID, Type: it.Type, Category: it.Category, Origin: destOrigin}
	if err := k.Store.WriteItemSource(copyTarget, it.Source); err != nil {
		return nil, kernel.New(kernel.CodeExecutionFailed, "copying %s into %s: %v", it.ID, req.Destination, err)
	}
	resp.CopiedTo = req.Destination
	return resp, nil
}
