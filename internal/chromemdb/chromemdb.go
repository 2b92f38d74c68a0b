package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"digital-dean/internal/config"
	"digital-dean/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// meta data keys stored with every chunk
const (
	metaSource = "source"
	metaPage   = "page"
	metaChunk  = "chunk"
)

var errNoEmbeddingFunc = errors.New("chunks must be embedded before they reach the store")

// VectorDBManager is an embedded chromem-go models.VectorStore
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

var _ models.VectorStore = (*VectorDBManager)(nil)

// NewVectorDBManager opens (or creates) the database and its collection
func NewVectorDBManager(cfg *config.ChromemConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	filePath := cfg.ExportPath
	if filePath == "" {
		filePath = filepath.Join(cfg.Path, cfg.Collection+".chromem")
	}
	m := &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filePath,
	}
	if _, err := m.GetOrCreateCollection(cfg.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, refuseToEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func refuseToEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// UpsertBatch adds the embedded chunks; ids derive from source and position so re-ingesting overwrites
func (m *VectorDBManager) UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s#%d", c.Source, c.ChunkID),
			Content: c.Content,
			Metadata: map[string]string{
				metaSource: c.Source,
				metaPage:   strconv.Itoa(c.PageNumber),
				metaChunk:  strconv.Itoa(c.ChunkID),
			},
			Embedding: c.Embedding,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: add %d documents: %w", models.ErrWrite, len(docs), err)
	}
	return nil
}

// Query runs a similarity search and keeps results scoring at least threshold
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, threshold float32, topK int) ([]models.RetrievalMatch, error) {
	// chromem rejects nResults larger than the collection
	n := min(topK, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	var matches []models.RetrievalMatch
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, models.RetrievalMatch{Content: r.Content, Score: r.Similarity})
	}
	return matches, nil
}

// Count returns the number of stored chunks
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	name := m.collection.Name
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection(name)
	return err
}

// export to an encrypted file
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// import from an encrypted file
func (m *VectorDBManager) Import() error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.collection.Name, refuseToEmbed)
	if c == nil {
		return fmt.Errorf("collection %s missing after import", m.collection.Name)
	}
	m.collection = c
	return nil
}
