package rag

import (
	"context"
	"fmt"
	"strings"

	"digital-dean/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// Searcher is the read half of a models.VectorStore
type Searcher interface {
	Query(ctx context.Context, embedding []float32, threshold float32, topK int) ([]models.RetrievalMatch, error)
}

// Retriever embeds a query and turns the matching chunks into a context block
type Retriever struct {
	embedder embeddings.Embedder
	store    Searcher
}

func NewRetriever(embedder embeddings.Embedder, store Searcher) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns nil when the store has no match for query
func (r *Retriever) Retrieve(ctx context.Context, query string, params models.RetrievalParams) (*models.ContextBlock, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := r.store.Query(ctx, queryEmbedding, params.Threshold, params.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	log.Debug().
		Int("matches", len(matches)).
		Float32("threshold", params.Threshold).
		Int("top_k", params.TopK).
		Msg("Retrieved syllabus context")
	if len(matches) == 0 {
		return nil, nil
	}

	contents := make([]string, len(matches))
	for i, m := range matches {
		contents[i] = m.Content
	}
	return &models.ContextBlock{
		Text:    strings.Join(contents, models.ContextSeparator),
		Matches: matches,
	}, nil
}
