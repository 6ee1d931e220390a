// Package index defines the vector index consumed by retrieval and provides
// two backends: a persistent local chromem-go store (default) and a
// pgvector-backed Postgres store.
package index

import (
	"context"
	"errors"
	"fmt"

	"querybot/internal/config"
	"querybot/internal/models"
)

// ErrEmptyIndex is returned by searches against an index with no documents.
// Callers treat it as "no relevant documents", not a hard failure.
var ErrEmptyIndex = errors.New("vector index is empty")

// EmbedFunc produces the embedding vector for a text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Index is the vector store contract. Reads may run concurrently;
// implementations serialize writes internally. Retrieval results are copies;
// indexed documents are never mutated in place.
type Index interface {
	// SimilaritySearch returns up to k documents ordered by embedding
	// similarity to the query.
	SimilaritySearch(ctx context.Context, query string, k int) ([]models.Document, error)

	// AddDocuments indexes new documents. IDs are assigned when empty.
	AddDocuments(ctx context.Context, docs []models.Document) error

	// AllDocuments returns a snapshot of every indexed document, used to
	// rebuild sparse-search structures.
	AllDocuments(ctx context.Context) ([]models.Document, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	// Persist flushes index state to durable storage.
	Persist(ctx context.Context) error
}

// New builds the index backend named by cfg.Index.Backend.
func New(ctx context.Context, cfg *config.Config, embed EmbedFunc) (Index, error) {
	switch cfg.Index.Backend {
	case "", "chromem":
		return NewChromem(cfg.Index.Path, cfg.Index.Collection, embed)
	case "postgres":
		return NewPostgres(ctx, &cfg.Index, embed)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func copyDocument(d models.Document) models.Document {
	meta := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		meta[k] = v
	}
	return models.Document{ID: d.ID, Content: d.Content, Metadata: meta}
}
