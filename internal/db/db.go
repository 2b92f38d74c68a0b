package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"digital-dean/internal/config"
	"digital-dean/internal/models"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Document is one embedded chunk row in the documents table
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source"`
	PageNumber    int             `bun:"page_number"`
	ChunkID       int             `bun:"chunk_id"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	CreatedAt     time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}

type match struct {
	Content    string  `bun:"content"`
	Similarity float32 `bun:"similarity"`
}

// Store is a pgvector backed models.VectorStore
type Store struct {
	db *bun.DB
}

var _ models.VectorStore = (*Store)(nil)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection with the configured driver: bun's pgdriver or lib/pq
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// InitDB enables pgvector and creates the documents table. A positive dimensions pins
// the embedding column to vector(dimensions).
func InitDB(ctx context.Context, db *bun.DB, dimensions int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if dimensions > 0 {
		q := fmt.Sprintf("ALTER TABLE documents ALTER COLUMN embedding TYPE vector(%d)", dimensions)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to set embedding dimensions: %w", err)
		}
	}
	return nil
}

// UpsertBatch writes all chunks in one transaction
func (s *Store) UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			Content:    c.Content,
			Source:     c.Source,
			PageNumber: c.PageNumber,
			ChunkID:    c.ChunkID,
			Embedding:  pgvector.NewVector(c.Embedding),
		}
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&docs).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: insert %d documents: %w", models.ErrWrite, len(docs), err)
	}
	return nil
}

// Query returns up to topK rows whose cosine similarity to embedding is at least threshold, best first
func (s *Store) Query(ctx context.Context, embedding []float32, threshold float32, topK int) ([]models.RetrievalMatch, error) {
	var rows []match
	if err := searchQuery(s.db, embedding, threshold, topK).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	matches := make([]models.RetrievalMatch, len(rows))
	for i, r := range rows {
		matches[i] = models.RetrievalMatch{Content: r.Content, Score: r.Similarity}
	}
	return matches, nil
}

func searchQuery(db *bun.DB, embedding []float32, threshold float32, topK int) *bun.SelectQuery {
	vec := pgvector.NewVector(embedding)
	return db.NewSelect().
		Model((*Document)(nil)).
		Column("content").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		Where("1 - (embedding <=> ?) >= ?", vec, threshold).
		OrderExpr("embedding <=> ?", vec).
		Limit(topK)
}

// DropDocuments drops the documents table
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}
