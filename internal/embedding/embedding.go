package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"digital-dean/internal/config"
	"digital-dean/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider embeds text through a langchaingo embedder and marks transient
// upstream failures as models.RetryableError.
type Provider struct {
	embedder embeddings.Embedder
}

var _ embeddings.Embedder = (*Provider)(nil)

// NewEmbedder creates an embedding provider for the configured backend
func NewEmbedder(llmConfig *config.LLMConfig, batchSize int) (*Provider, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		client = llm
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", llmConfig.Provider)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewProvider(embedder), nil
}

// NewProvider wraps an existing embedder
func NewProvider(embedder embeddings.Embedder) *Provider {
	return &Provider{embedder: embedder}
}

func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classify(err)
	}
	return vector, nil
}

var transientMarkers = []string{"429", "rate limit", "too many requests", "502", "503", "504", "connection reset", "timeout"}

// classify marks rate limiting, gateway errors and timeouts as retryable
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.RetryableError{Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return &models.RetryableError{Err: err}
		}
	}
	return err
}
