package models

import (
	"context"
	"io"
)

// VectorStore persists embedded chunks and answers similarity queries
type VectorStore interface {
	UpsertBatch(ctx context.Context, chunks []EmbeddedChunk) error
	Query(ctx context.Context, embedding []float32, threshold float32, topK int) ([]RetrievalMatch, error)
}

// DocumentLoader turns a file on disk into a paged Document
type DocumentLoader interface {
	Load(path string) (*Document, error)
}

// TextGenerator produces a completion for a prompt
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Image is an opened image resource handed to a vision model
type Image struct {
	MIMEType string
	Reader   io.Reader
}

// VisionGenerator produces a completion for a prompt plus an image
type VisionGenerator interface {
	GenerateWithImage(ctx context.Context, prompt string, img Image) (string, error)
}
