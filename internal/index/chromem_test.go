package index

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybot/internal/models"
)

// hashEmbed is a deterministic stand-in for a real embedding model: a
// hashed bag-of-words, l2-normalized. Texts sharing many tokens land close
// in cosine space, which is all these tests need.
func hashEmbed(ctx context.Context, text string) ([]float32, error) {
	const dims = 64
	vec := make([]float32, dims)
	for _, tok := range regexp.MustCompile(`\w+`).FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func TestEmptyIndexSearch(t *testing.T) {
	idx, err := NewChromemInMemory("test", hashEmbed)
	require.NoError(t, err)

	_, err = idx.SimilaritySearch(context.Background(), "anything", 4)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestIngestThenQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromemInMemory("test", hashEmbed)
	require.NoError(t, err)

	sentence := "Le rapport recense douze intrusions sur le site nord le 2024-05-01."
	docs := []models.Document{
		{Content: sentence, Metadata: map[string]string{"source": "rapport.pdf"}},
		{Content: "Guide d'installation de la caméra réseau extérieure.", Metadata: map[string]string{"source": "guide.pdf"}},
		{Content: "Facture du mois de mars pour la maintenance annuelle.", Metadata: map[string]string{"source": "facture.pdf"}},
	}
	require.NoError(t, idx.AddDocuments(ctx, docs))

	// Querying with a verbatim sentence must surface its document first.
	results, err := idx.SimilaritySearch(ctx, sentence, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rapport.pdf", results[0].Source())
	assert.Equal(t, sentence, results[0].Content)
}

func TestSearchReturnsCopies(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromemInMemory("test", hashEmbed)
	require.NoError(t, err)

	require.NoError(t, idx.AddDocuments(ctx, []models.Document{
		{Content: "Document original avec ses métadonnées.", Metadata: map[string]string{"source": "a.pdf"}},
	}))

	first, err := idx.SimilaritySearch(ctx, "document original", 1)
	require.NoError(t, err)
	first[0].Metadata["source"] = "tampered"

	second, err := idx.SimilaritySearch(ctx, "document original", 1)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", second[0].Source(), "retrieval must return copies, not shared references")
}

func TestKClampedToCollectionSize(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromemInMemory("test", hashEmbed)
	require.NoError(t, err)

	require.NoError(t, idx.AddDocuments(ctx, []models.Document{
		{Content: "Seul document du corpus de test."},
	}))

	results, err := idx.SimilaritySearch(ctx, "document", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestAllDocumentsSnapshot(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromemInMemory("test", hashEmbed)
	require.NoError(t, err)

	require.NoError(t, idx.AddDocuments(ctx, []models.Document{
		{Content: "premier document du corpus"},
		{Content: "second document du corpus"},
	}))

	all, err := idx.AllDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewChromem(dir, "persisted", hashEmbed)
	require.NoError(t, err)
	require.NoError(t, idx.AddDocuments(ctx, []models.Document{
		{Content: "document persistant avec un contenu identifiable"},
	}))
	require.NoError(t, idx.Persist(ctx))

	reopened, err := NewChromem(dir, "persisted", hashEmbed)
	require.NoError(t, err)

	all, err := reopened.AllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "document persistant avec un contenu identifiable", all[0].Content)
}
