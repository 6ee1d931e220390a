package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"querybot/internal/models"
)

const compress = false

// Chromem is the default index backend: chromem-go for vectors plus a JSON
// docstore sidecar so the full corpus survives restarts and can feed the
// sparse-search rebuild.
type Chromem struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu        sync.Mutex // serializes writes; docstore is copy-on-read
	docs      []models.Document
	storePath string
}

// NewChromem opens (or creates) a persistent store under dbPath.
func NewChromem(dbPath, collectionName string, embed EmbedFunc) (*Chromem, error) {
	db, err := chromem.NewPersistentDB(dbPath, compress)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	return newChromem(db, dbPath, collectionName, embed)
}

// NewChromemInMemory builds a non-persistent store, used by tests and by
// ephemeral ingestion runs.
func NewChromemInMemory(collectionName string, embed EmbedFunc) (*Chromem, error) {
	return newChromem(chromem.NewDB(), "", collectionName, embed)
}

func newChromem(db *chromem.DB, dbPath, collectionName string, embed EmbedFunc) (*Chromem, error) {
	collection, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", collectionName, err)
	}
	c := &Chromem{db: db, collection: collection}
	if dbPath != "" {
		c.storePath = filepath.Join(dbPath, collectionName+".docs.json")
		if err := c.loadDocstore(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Chromem) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Document, error) {
	// chromem rejects nResults above the collection size.
	count := c.collection.Count()
	if count == 0 {
		return nil, ErrEmptyIndex
	}
	if k > count {
		k = count
	}
	results, err := c.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	docs := make([]models.Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, copyDocument(models.Document{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
		}))
	}
	return docs, nil
}

func (c *Chromem) AddDocuments(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	chromemDocs := make([]chromem.Document, 0, len(docs))
	added := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
		})
		added = append(added, copyDocument(d))
	}
	if err := c.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	c.docs = append(c.docs, added...)
	return c.saveDocstoreLocked()
}

func (c *Chromem) AllDocuments(ctx context.Context) ([]models.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]models.Document, 0, len(c.docs))
	for _, d := range c.docs {
		snapshot = append(snapshot, copyDocument(d))
	}
	return snapshot, nil
}

func (c *Chromem) Count(ctx context.Context) (int, error) {
	return c.collection.Count(), nil
}

// Persist flushes the docstore sidecar. chromem itself writes through on
// every add when opened persistently.
func (c *Chromem) Persist(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveDocstoreLocked()
}

func (c *Chromem) loadDocstore() error {
	data, err := os.ReadFile(c.storePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading docstore: %w", err)
	}
	if err := json.Unmarshal(data, &c.docs); err != nil {
		// A corrupt sidecar should not brick the index; vectors are intact.
		log.Warn().Err(err).Str("path", c.storePath).Msg("Corrupt docstore sidecar, starting empty")
		c.docs = nil
	}
	return nil
}

func (c *Chromem) saveDocstoreLocked() error {
	if c.storePath == "" {
		return nil
	}
	data, err := json.Marshal(c.docs)
	if err != nil {
		return fmt.Errorf("encoding docstore: %w", err)
	}
	if err := os.WriteFile(c.storePath, data, 0o644); err != nil {
		return fmt.Errorf("writing docstore: %w", err)
	}
	return nil
}
