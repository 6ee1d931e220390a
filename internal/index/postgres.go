package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"querybot/internal/config"
	"querybot/internal/models"
)

// documentRow is the pgvector-backed storage row for one chunk.
type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64     `bun:"id,pk,autoincrement"`
	DocID         string    `bun:"doc_id,notnull"`
	Content       string    `bun:"content,notnull"`
	Source        string    `bun:"source"`
	Section       string    `bun:"section"`
	Format        string    `bun:"format"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector(768)"`
}

// Postgres is the pgvector index backend.
type Postgres struct {
	db    *bun.DB
	embed EmbedFunc
}

// NewPostgres connects, creates the documents table when absent, and returns
// the backend.
func NewPostgres(ctx context.Context, cfg *config.IndexConfig, embed EmbedFunc) (*Postgres, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.PostgresDSN),
		pgdriver.WithPassword(cfg.PostgresKey),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	p := &Postgres{db: db, embed: embed}
	if _, err := db.NewCreateTable().Model((*documentRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating documents table: %w", err)
	}
	return p, nil
}

func (p *Postgres) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Document, error) {
	count, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	queryEmbedding, err := p.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var rows []documentRow
	err = p.db.NewSelect().
		Model(&rows).
		Column("doc_id", "content", "source", "section", "format").
		OrderExpr("embedding <-> ?", queryEmbedding).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return rowsToDocuments(rows), nil
}

func (p *Postgres) AddDocuments(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]documentRow, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		embedding, err := p.embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("embedding document %s: %w", d.ID, err)
		}
		rows = append(rows, documentRow{
			DocID:     d.ID,
			Content:   d.Content,
			Source:    d.Metadata["source"],
			Section:   d.Metadata["section"],
			Format:    d.Metadata["format"],
			Embedding: embedding,
		})
	}
	if _, err := p.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("storing documents: %w", err)
	}
	return nil
}

func (p *Postgres) AllDocuments(ctx context.Context) ([]models.Document, error) {
	var rows []documentRow
	err := p.db.NewSelect().
		Model(&rows).
		Column("doc_id", "content", "source", "section", "format").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return rowsToDocuments(rows), nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	count, err := p.db.NewSelect().Model((*documentRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// Persist is a no-op: every write is already durable in Postgres.
func (p *Postgres) Persist(ctx context.Context) error {
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func rowsToDocuments(rows []documentRow) []models.Document {
	docs := make([]models.Document, 0, len(rows))
	for _, r := range rows {
		meta := map[string]string{}
		if r.Source != "" {
			meta["source"] = r.Source
		}
		if r.Section != "" {
			meta["section"] = r.Section
		}
		if r.Format != "" {
			meta["format"] = r.Format
		}
		docs = append(docs, models.Document{ID: r.DocID, Content: r.Content, Metadata: meta})
	}
	return docs
}
