package chunker

import (
	"strings"
	"testing"

	"digital-dean/internal/models"
)

func docOf(pages ...string) *models.Document {
	doc := &models.Document{Source: "syllabus.pdf"}
	for i, p := range pages {
		doc.Pages = append(doc.Pages, models.Page{Number: i + 1, Text: p})
	}
	return doc
}

func TestSplit_EmptyDocument(t *testing.T) {
	for _, doc := range []*models.Document{docOf(), docOf("   \n ")} {
		chunks, err := Split(doc, DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected no chunks, got %d", len(chunks))
		}
	}
}

func TestSplit_ShortDocumentIsOneChunk(t *testing.T) {
	chunks, err := Split(docOf("Mitochondria are the powerhouse of the cell."), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "Mitochondria are the powerhouse of the cell." {
		t.Errorf("unexpected content %q", chunks[0].Content)
	}
	if chunks[0].Source != "syllabus.pdf" || chunks[0].PageNumber != 1 || chunks[0].ChunkID != 0 {
		t.Errorf("unexpected chunk metadata %+v", chunks[0])
	}
}

func TestSplit_RejectsOverlapNotSmallerThanSize(t *testing.T) {
	if _, err := Split(docOf("text"), Config{MaxSize: 10, Overlap: 10}); err == nil {
		t.Fatal("expected error for overlap >= size")
	}
}

func TestSplit_BoundsAndOverlap(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	cfg := DefaultConfig()
	chunks, err := Split(docOf(text), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c.Content)); n > cfg.MaxSize {
			t.Errorf("chunk %d has %d chars, exceeds %d", i, n, cfg.MaxSize)
		}
		if c.ChunkID != i {
			t.Errorf("expected chunk id %d, got %d", i, c.ChunkID)
		}
		if i == 0 {
			continue
		}
		prev := []rune(chunks[i-1].Content)
		tail := string(prev[len(prev)-cfg.Overlap:])
		if !strings.HasPrefix(c.Content, tail) {
			t.Errorf("chunk %d does not start with the last %d chars of chunk %d", i, cfg.Overlap, i-1)
		}
	}
}

func TestSplit_RejoinReconstructsText(t *testing.T) {
	cases := map[string]*models.Document{
		"words":     docOf(strings.Repeat("alpha beta gamma delta ", 200)),
		"no breaks": docOf(strings.Repeat("x", 2501)),
		"unicode":   docOf(strings.Repeat("naïve café · résumé ", 150)),
		"pages":     docOf(strings.Repeat("page one text ", 70), strings.Repeat("page two text ", 70), "tail"),
	}
	for name, doc := range cases {
		for _, cfg := range []Config{DefaultConfig(), {MaxSize: 50, Overlap: 45}, {MaxSize: 10, Overlap: 0}} {
			chunks, err := Split(doc, cfg)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", name, err)
			}
			if got := Rejoin(chunks, cfg.Overlap); got != doc.Text() {
				t.Errorf("%s %+v: rejoined text differs from source (got %d chars, want %d)",
					name, cfg, len(got), len(doc.Text()))
			}
		}
	}
}

func TestSplit_KeepsShortTrailingRemainder(t *testing.T) {
	text := strings.Repeat("x", 805)
	chunks, err := Split(docOf(text), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if n := len(chunks[1].Content); n != 105 {
		t.Errorf("expected trailing chunk of 105 chars (100 overlap + 5), got %d", n)
	}
}

func TestSplit_PageNumbers(t *testing.T) {
	first := strings.Repeat("a", 900)
	second := strings.Repeat("b", 900)
	chunks, err := Split(docOf(first, second), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks[0].PageNumber != 1 {
		t.Errorf("expected first chunk on page 1, got %d", chunks[0].PageNumber)
	}
	last := chunks[len(chunks)-1]
	if last.PageNumber != 2 {
		t.Errorf("expected last chunk on page 2, got %d", last.PageNumber)
	}
}
