package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"digital-dean/internal/models"
)

const (
	DefaultMaxSize = 800
	DefaultOverlap = 100
)

// Config bounds chunk length and the overlap between consecutive chunks, both in characters
type Config struct {
	MaxSize int
	Overlap int
}

func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize, Overlap: DefaultOverlap}
}

func (c Config) validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.MaxSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.Overlap, c.MaxSize)
	}
	return nil
}

// Split cuts the document text into ordered, overlapping chunks. Every chunk but the
// first starts with exactly cfg.Overlap characters taken from the end of its predecessor.
// A document with no visible text yields no chunks.
func Split(doc *models.Document, cfg Config) ([]models.Chunk, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	content := doc.Text()
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	runes := []rune(content)
	pageStarts := pageOffsets(doc)

	var chunks []models.Chunk
	for i, s := range chunkContent(runes, cfg.MaxSize, cfg.Overlap) {
		chunks = append(chunks, models.Chunk{
			Content:    string(runes[s.start:s.end]),
			Source:     doc.Source,
			PageNumber: pageAt(doc, pageStarts, s.start),
			ChunkID:    i,
		})
	}
	return chunks, nil
}

type span struct {
	start, end int
}

// chunkContent returns rune spans of at most maxChars. A span may end early at a
// break point found in the last tenth of the window.
func chunkContent(runes []rune, maxChars, overlapChars int) []span {
	contentLen := len(runes)
	var spans []span

	start := 0
	for {
		end := min(start+maxChars, contentLen)

		if end < contentLen {
			lookBack := maxChars / 10
			// the next start (end - overlap) must stay ahead of this one
			for i := end - 1; i >= end-lookBack && i > start+overlapChars; i-- {
				if isBreak(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		spans = append(spans, span{start: start, end: end})
		if end >= contentLen {
			return spans
		}
		start = end - overlapChars
	}
}

func isBreak(r rune) bool {
	return unicode.IsSpace(r) || r == '.' || r == '!' || r == '?'
}

// Rejoin reverses Split: it drops the leading overlap of every chunk after the first.
func Rejoin(chunks []models.Chunk, overlap int) string {
	var content strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk.Content)
		if i > 0 {
			runes = runes[min(overlap, len(runes)):]
		}
		content.WriteString(string(runes))
	}
	return content.String()
}

// pageOffsets returns the rune offset at which each page starts in doc.Text()
func pageOffsets(doc *models.Document) []int {
	offsets := make([]int, len(doc.Pages))
	pos := 0
	sepLen := len([]rune(models.PageSeparator))
	for i, p := range doc.Pages {
		offsets[i] = pos
		pos += len([]rune(p.Text)) + sepLen
	}
	return offsets
}

func pageAt(doc *models.Document, offsets []int, pos int) int {
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > pos }) - 1
	if i < 0 {
		return 0
	}
	return doc.Pages[i].Number
}
