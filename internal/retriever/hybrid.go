// Package retriever combines dense similarity search with sparse TF-IDF
// ranking, deduplicates near-identical chunks, filters boilerplate, and
// reranks for source diversity.
package retriever

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"querybot/internal/index"
	"querybot/internal/models"
)

const (
	// dedupPrefixLen bounds the normalized-content prefix of the dedup key,
	// collapsing near-identical chunks despite whitespace or punctuation
	// drift.
	dedupPrefixLen = 100
	// minInformativeLength drops chunks too short to carry an answer.
	minInformativeLength = 50
)

var nonWordPattern = regexp.MustCompile(`\W+`)

// Retriever serves hybrid and dense-only retrieval over a vector index. The
// sparse snapshot is guarded by a RWMutex: searches share read access,
// rebuilds (after every index mutation) take the write lock.
type Retriever struct {
	idx index.Index

	mu     sync.RWMutex
	sparse *tfidfIndex
}

func New(idx index.Index) *Retriever {
	return &Retriever{idx: idx}
}

// RebuildSparse snapshots the full corpus into a fresh TF-IDF structure.
// Call after every index mutation; until then sparse results may be stale,
// which is tolerable. A torn structure is not.
func (r *Retriever) RebuildSparse(ctx context.Context) error {
	docs, err := r.idx.AllDocuments(ctx)
	if err != nil {
		return err
	}
	snapshot := buildTFIDF(docs)
	r.mu.Lock()
	r.sparse = snapshot
	r.mu.Unlock()
	log.Debug().Int("documents", len(docs)).Msg("Sparse index rebuilt")
	return nil
}

// DenseSearch is plain top-k similarity search. An empty index yields an
// empty result, not an error.
func (r *Retriever) DenseSearch(ctx context.Context, query string, k int) ([]models.Document, error) {
	docs, err := r.idx.SimilaritySearch(ctx, query, k)
	if errors.Is(err, index.ErrEmptyIndex) {
		return nil, nil
	}
	return docs, err
}

// HybridSearch merges dense and sparse candidates (dense first), dedupes on
// (source, section, normalized prefix), filters low-information chunks,
// reranks for source diversity and truncates to k. Sparse unavailability
// degrades to dense-only results.
func (r *Retriever) HybridSearch(ctx context.Context, query string, k, denseK, keywordK int) ([]models.Document, error) {
	dense, err := r.DenseSearch(ctx, query, denseK)
	if err != nil {
		return nil, err
	}

	sparse := r.sparseSearch(ctx, query, keywordK)

	merged := dedupe(append(dense, sparse...))
	informative := merged[:0]
	for _, doc := range merged {
		if isInformative(doc.Content) {
			informative = append(informative, doc)
		}
	}

	result := rerankForDiversity(informative, k)
	if len(result) > k {
		result = result[:k]
	}
	return result, nil
}

func (r *Retriever) sparseSearch(ctx context.Context, query string, k int) []models.Document {
	r.mu.RLock()
	snapshot := r.sparse
	r.mu.RUnlock()

	if snapshot == nil {
		if err := r.RebuildSparse(ctx); err != nil {
			log.Warn().Err(err).Msg("Sparse search unavailable, using dense results only")
			return nil
		}
		r.mu.RLock()
		snapshot = r.sparse
		r.mu.RUnlock()
	}
	return snapshot.search(query, k)
}

func dedupe(docs []models.Document) []models.Document {
	type key struct {
		source, section, prefix string
	}
	seen := make(map[key]bool, len(docs))
	unique := docs[:0]
	for _, doc := range docs {
		k := key{doc.Source(), doc.Section(), normalizeContent(doc.Content)}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, doc)
	}
	return unique
}

func normalizeContent(text string) string {
	normalized := nonWordPattern.ReplaceAllString(strings.ToLower(text), "")
	if len(normalized) > dedupPrefixLen {
		normalized = normalized[:dedupPrefixLen]
	}
	return normalized
}

// isInformative rejects near-empty chunks and page-number boilerplate.
func isInformative(text string) bool {
	trimmed := strings.TrimSpace(text)
	return len(trimmed) >= minInformativeLength &&
		!strings.HasPrefix(strings.ToLower(trimmed), "page")
}

// rerankForDiversity greedily prefers the first chunk from each distinct
// (source, section) pair; additional chunks from already-selected sources
// are admitted only once every distinct source is represented, so one large
// document cannot dominate the result set.
func rerankForDiversity(docs []models.Document, k int) []models.Document {
	selected := make([]models.Document, 0, k)
	taken := make(map[int]bool, len(docs))
	seenSources := make(map[[2]string]bool)

	for i, doc := range docs {
		if len(selected) >= k {
			return selected
		}
		src := [2]string{doc.Source(), doc.Section()}
		if !seenSources[src] {
			seenSources[src] = true
			taken[i] = true
			selected = append(selected, doc)
		}
	}
	for i, doc := range docs {
		if len(selected) >= k {
			break
		}
		if !taken[i] {
			selected = append(selected, doc)
		}
	}
	return selected
}
