package metaops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/signature"
)

func TestSignWritesValidatedMarkerBackToSource(t *testing.T) {
	k, project, _, _ := newTestKernel(t)

	resp, err := k.Sign(context.Background(), SignRequest{ItemType: item.TypeKnowledge, ItemID: "topic"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Signature.Hash == "" {
		t.Fatalf("expected a non-empty hash, got %+v", resp)
	}

	src, err := os.ReadFile(filepath.Join(project, "knowledge", "general", "topic.md"))
	if err != nil {
		t.Fatal(err)
	}
	marker, ok := signature.Parse(src)
	if !ok {
		t.Fatalf("expected a signature marker in the rewritten source")
	}
	if marker.Hash != resp.Signature.Hash {
		t.Fatalf("marker hash %q does not match response hash %q", marker.Hash, resp.Signature.Hash)
	}
}

func TestSignIsIdempotentOnAlreadySignedContent(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	first, err := k.Sign(context.Background(), SignRequest{ItemType: item.TypeKnowledge, ItemID: "topic"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := k.Sign(context.Background(), SignRequest{ItemType: item.TypeKnowledge, ItemID: "topic"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Signature.Hash != second.Signature.Hash {
		t.Fatalf("re-signing unchanged content should produce the same hash, got %q then %q",
			first.Signature.Hash, second.Signature.Hash)
	}
}
