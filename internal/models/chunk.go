package models

import "strings"

// Page is one page (or sheet, or slide) of a loaded document
type Page struct {
	Number int
	Text   string
}

// Document is the loaded source content plus its page boundaries
type Document struct {
	Source string
	Pages  []Page
}

// Text returns the full document text, pages joined by PageSeparator
func (d *Document) Text() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, PageSeparator)
}

// Chunk represents a bounded segment of a document with its position
type Chunk struct {
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
}

// EmbeddedChunk is a chunk paired with its embedding vector
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// RetrievalMatch is one stored chunk returned by a similarity query
type RetrievalMatch struct {
	Content string
	Score   float32
}

// RetrievalParams is a retrieval profile: similarity floor and result cap
type RetrievalParams struct {
	Threshold float32 `yaml:"threshold" json:"threshold"`
	TopK      int     `yaml:"top_k" json:"top_k"`
}

// ContextBlock is the joined content of the matches for one query.
// A nil *ContextBlock means nothing matched.
type ContextBlock struct {
	Text    string
	Matches []RetrievalMatch
}

// GradingResult is the structured outcome of grading a submission
type GradingResult struct {
	Score    string `json:"score"`
	Feedback string `json:"feedback"`
}
