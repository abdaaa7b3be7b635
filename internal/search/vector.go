package search

import (
	"fmt"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

// VectorBackend is the plugin interface a concrete embedding/vector-store
// adapter implements. No adapter ships with this kernel; callers that
// want semantic search supply their own and register it with a Hybrid
// searcher. With no backend registered, Hybrid silently degrades to
// keyword-only search.
type VectorBackend interface {
	// EmbedAndStore computes an embedding for doc's searchable text and
	// upserts it into the backend's index.
	EmbedAndStore(doc *Document) error

	// Search returns the top candidates for query, restricted to
	// itemType when non-empty.
	Search(query string, itemType item.Type, limit int) ([]Result, error)

	// IsAvailable reports whether the backend is currently reachable
	// and should be consulted for this query.
	IsAvailable() bool

	// Dimension returns the embedding dimension this backend produces,
	// used to validate EmbedAndStore calls against a fixed schema.
	Dimension() int
}

// ErrDimensionMismatch is returned by a VectorBackend implementation when
// an embedding's dimension does not match Dimension().
type ErrDimensionMismatch struct {
	Want, Got int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector backend: embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}
