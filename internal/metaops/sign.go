package metaops

import (
	"context"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"github.com/rakunlabs/kiwimcp/internal/signature"
)

// Sign re-canonicalizes an item's manifest path, computes a fresh content
// hash and timestamp, and writes the validated marker back in place.
func (k *Kernel) Sign(ctx context.Context, req SignRequest) (*SignResponse, error) {
	it, err := k.Store.Load(item.Key{Type: req.ItemType, ID: req.ItemID})
	if err != nil {
		return nil, err
	}

	path, err := k.Store.ManifestPath(it)
	if err != nil {
		return nil, kernel.New(kernel.CodeExecutionFailed, "resolving manifest path for %s: %v", req.ItemID, err)
	}

	signed, marker, err := signature.Sign(path, it.Source, k.SigningKey)
	if err != nil {
		return nil, kernel.New(kernel.CodeExecutionFailed, "signing %s: %v", req.ItemID, err)
	}
	if err := k.Store.WriteItemSource(it, signed); err != nil {
		return nil, kernel.New(kernel.CodeExecutionFailed, "writing signed %s: %v", req.ItemID, err)
	}

	return &SignResponse{
		Status:    "ok",
		Signature: SignatureInfo{Hash: marker.Hash, Timestamp: marker.Timestamp},
	}, nil
}
