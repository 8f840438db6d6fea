// Package vectorstore wraps chromem-go with one in-process database per
// client. A store is built whole during ingestion and swapped into the
// registry; it is never shared across clients, so cross-tenant retrieval is
// structurally impossible.
package vectorstore

import (
	"fmt"
	"sort"

	"context"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "passages"

// Store is a single client's document index.
type Store struct {
	clientID   string
	db         *chromem.DB
	collection *chromem.Collection
}

// Chunk is one embeddable unit of a source document.
type Chunk struct {
	ID    string
	DocID string
	Text  string
}

// SearchResult is one scored chunk.
type SearchResult struct {
	DocID string
	Text  string
	Score float64
}

func NewStore(clientID string, embedder Embedder) (*Store, error) {
	db := chromem.NewDB()

	col, err := db.GetOrCreateCollection(collectionName, map[string]string{"client_id": clientID}, toChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &Store{
		clientID:   clientID,
		db:         db,
		collection: col,
	}, nil
}

func (s *Store) ClientID() string {
	return s.clientID
}

func (s *Store) Count() int {
	return s.collection.Count()
}

func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:      chunk.ID,
			Content: chunk.Text,
			Metadata: map[string]string{
				"doc_id":    chunk.DocID,
				"client_id": s.clientID,
			},
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k chunks ordered by score descending. Ties break by
// document ID so ordering never depends on insertion order. An empty store
// returns an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			DocID: r.Metadata["doc_id"],
			Text:  r.Content,
			Score: float64(r.Similarity),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})

	return out, nil
}
