package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digital-dean/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

const DefaultBatchSize = 50

// Writer is the write half of a models.VectorStore
type Writer interface {
	UpsertBatch(ctx context.Context, chunks []models.EmbeddedChunk) error
}

type Config struct {
	BatchSize   int
	Pause       time.Duration // fixed delay between batches
	MaxRetries  int           // extra attempts for a batch failing with a retryable error
	BaseBackoff time.Duration
}

// Pipeline embeds chunks and writes them to the store in ordered batches
type Pipeline struct {
	embedder embeddings.Embedder
	store    Writer
	cfg      Config
	wait     func(ctx context.Context, d time.Duration) error
}

func New(embedder embeddings.Embedder, store Writer, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Pipeline{embedder: embedder, store: store, cfg: cfg, wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ingest writes chunks in contiguous batches, strictly in order. A batch that still fails
// after its retries aborts the run; earlier batches stay committed. It returns the number
// of chunks committed.
func (p *Pipeline) Ingest(ctx context.Context, chunks []models.Chunk) (int, error) {
	total := len(chunks)
	batches := (total + p.cfg.BatchSize - 1) / p.cfg.BatchSize
	committed := 0

	for b := 0; b < batches; b++ {
		if b > 0 {
			if err := p.wait(ctx, p.cfg.Pause); err != nil {
				return committed, fmt.Errorf("%w: interrupted before batch %d/%d: %w", models.ErrWrite, b+1, batches, err)
			}
		}

		start := b * p.cfg.BatchSize
		end := min(start+p.cfg.BatchSize, total)
		batch := chunks[start:end]

		if err := p.writeWithRetry(ctx, batch); err != nil {
			log.Error().Err(err).Int("batch", b+1).Int("batches", batches).Int("committed", committed).Msg("Batch failed, aborting ingestion")
			if errors.Is(err, models.ErrWrite) {
				return committed, fmt.Errorf("batch %d/%d: %w", b+1, batches, err)
			}
			return committed, fmt.Errorf("%w: batch %d/%d: %w", models.ErrWrite, b+1, batches, err)
		}
		committed += len(batch)
		log.Info().Int("batch", b+1).Int("batches", batches).Int("size", len(batch)).Int("committed", committed).Msg("Batch stored")
	}
	return committed, nil
}

func (p *Pipeline) writeWithRetry(ctx context.Context, batch []models.Chunk) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = p.writeBatch(ctx, batch); err == nil {
			return nil
		}
		if attempt >= p.cfg.MaxRetries || !retryable(err) {
			return err
		}
		delay := Backoff(attempt, p.cfg.BaseBackoff)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying batch")
		if werr := p.wait(ctx, delay); werr != nil {
			return fmt.Errorf("%w (retry interrupted: %v)", err, werr)
		}
	}
}

func retryable(err error) bool {
	return models.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

// writeBatch embeds one batch and persists it as a single write
func (p *Pipeline) writeBatch(ctx context.Context, batch []models.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding batch: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	embedded := make([]models.EmbeddedChunk, len(batch))
	for i, c := range batch {
		embedded[i] = models.EmbeddedChunk{Chunk: c, Embedding: vectors[i]}
	}
	return p.store.UpsertBatch(ctx, embedded)
}
