// Package retrieval returns ranked candidate passages scoped strictly to the
// requesting client's index.
package retrieval

import (
	"context"
	"fmt"

	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/internal/registry"
)

type Retriever struct{}

func New() *Retriever {
	return &Retriever{}
}

// Retrieve searches the index captured in snap. The snapshot already pins a
// single client's store, so results cannot cross tenants; each passage is
// stamped with the snapshot's client for the isolation invariant check.
// A client with no ingested documents yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, snap registry.Snapshot, query string, k int) ([]pipeline.Passage, error) {
	if snap.Store == nil {
		return nil, nil
	}

	results, err := snap.Store.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search client index: %w", err)
	}

	passages := make([]pipeline.Passage, 0, len(results))
	for _, res := range results {
		passages = append(passages, pipeline.Passage{
			DocID:    res.DocID,
			Text:     res.Text,
			Score:    res.Score,
			ClientID: snap.ClientID,
		})
	}

	return passages, nil
}
