package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"digital-dean/internal/models"
)

type fakeEmbedder struct {
	calls  int
	docsFn func(call int, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.docsFn != nil {
		return f.docsFn(f.calls, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

type fakeStore struct {
	batches [][]models.EmbeddedChunk
	failOn  int // 1-based write attempt that fails, 0 never
	writes  int
	err     error
}

func (f *fakeStore) UpsertBatch(_ context.Context, chunks []models.EmbeddedChunk) error {
	f.writes++
	if f.failOn == f.writes {
		return f.err
	}
	f.batches = append(f.batches, chunks)
	return nil
}

func makeChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{Content: fmt.Sprintf("chunk-%d", i), Source: "doc.pdf", ChunkID: i}
	}
	return chunks
}

func newTestPipeline(e *fakeEmbedder, s *fakeStore, cfg Config) (*Pipeline, *[]time.Duration) {
	p := New(e, s, cfg)
	var waits []time.Duration
	p.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return p, &waits
}

func TestIngest_BatchesAreContiguousAndOrdered(t *testing.T) {
	for _, tc := range []struct{ total, size, batches int }{
		{0, 50, 0}, {1, 50, 1}, {50, 50, 1}, {51, 50, 2}, {120, 50, 3}, {7, 3, 3},
	} {
		store := &fakeStore{}
		p, waits := newTestPipeline(&fakeEmbedder{}, store, Config{BatchSize: tc.size, Pause: time.Second})
		chunks := makeChunks(tc.total)

		n, err := p.Ingest(context.Background(), chunks)
		if err != nil {
			t.Fatalf("%d/%d: unexpected error: %v", tc.total, tc.size, err)
		}
		if n != tc.total {
			t.Errorf("%d/%d: expected %d committed, got %d", tc.total, tc.size, tc.total, n)
		}
		if len(store.batches) != tc.batches {
			t.Fatalf("%d/%d: expected %d writes, got %d", tc.total, tc.size, tc.batches, len(store.batches))
		}
		next := 0
		for _, batch := range store.batches {
			if len(batch) > tc.size {
				t.Errorf("batch of %d exceeds size %d", len(batch), tc.size)
			}
			for _, c := range batch {
				if c.ChunkID != chunks[next].ChunkID {
					t.Fatalf("expected chunk %d, got %d", chunks[next].ChunkID, c.ChunkID)
				}
				if len(c.Embedding) != 1 {
					t.Errorf("expected chunk %d to carry its embedding", c.ChunkID)
				}
				next++
			}
		}
		if want := max(tc.batches-1, 0); len(*waits) != want {
			t.Errorf("%d/%d: expected %d pauses, got %d", tc.total, tc.size, want, len(*waits))
		}
	}
}

func TestIngest_FailureKeepsEarlierBatches(t *testing.T) {
	store := &fakeStore{failOn: 3, err: errors.New("disk full")}
	p, _ := newTestPipeline(&fakeEmbedder{}, store, Config{BatchSize: 10})

	n, err := p.Ingest(context.Background(), makeChunks(45))
	if !errors.Is(err, models.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if n != 20 {
		t.Errorf("expected 20 committed, got %d", n)
	}
	if store.writes != 3 {
		t.Errorf("expected pipeline to stop after the failed write, got %d writes", store.writes)
	}
}

func TestIngest_EmbeddingFailureIsWriteError(t *testing.T) {
	e := &fakeEmbedder{docsFn: func(int, []string) ([][]float32, error) {
		return nil, errors.New("model not found")
	}}
	store := &fakeStore{}
	p, _ := newTestPipeline(e, store, Config{BatchSize: 5, MaxRetries: 3})

	n, err := p.Ingest(context.Background(), makeChunks(12))
	if !errors.Is(err, models.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if n != 0 || len(store.batches) != 0 {
		t.Errorf("expected nothing committed, got %d", n)
	}
	if e.calls != 1 {
		t.Errorf("expected no retries for a permanent error, got %d calls", e.calls)
	}
}

func TestIngest_RetriesRetryableFailures(t *testing.T) {
	e := &fakeEmbedder{}
	e.docsFn = func(call int, texts []string) ([][]float32, error) {
		if call <= 2 {
			return nil, &models.RetryableError{Err: errors.New("429 too many requests")}
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1}
		}
		return out, nil
	}
	store := &fakeStore{}
	p, waits := newTestPipeline(e, store, Config{BatchSize: 10, MaxRetries: 2, BaseBackoff: time.Millisecond})

	n, err := p.Ingest(context.Background(), makeChunks(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 committed, got %d", n)
	}
	if len(*waits) != 2 {
		t.Errorf("expected 2 backoff waits, got %d", len(*waits))
	}
}

func TestIngest_GivesUpAfterMaxRetries(t *testing.T) {
	e := &fakeEmbedder{docsFn: func(int, []string) ([][]float32, error) {
		return nil, &models.RetryableError{Err: errors.New("503")}
	}}
	p, _ := newTestPipeline(e, &fakeStore{}, Config{BatchSize: 10, MaxRetries: 2})

	_, err := p.Ingest(context.Background(), makeChunks(3))
	if !errors.Is(err, models.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if e.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", e.calls)
	}
}

func TestIngest_CancelledDuringPause(t *testing.T) {
	store := &fakeStore{}
	p := New(&fakeEmbedder{}, store, Config{BatchSize: 2, Pause: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	p.wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleep(ctx, d)
	}

	n, err := p.Ingest(ctx, makeChunks(5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected first batch committed, got %d", n)
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		want := base << uint(attempt)
		d := Backoff(attempt, base)
		if d < want || d > want+want/2 {
			t.Errorf("attempt %d: expected delay in [%v, %v], got %v", attempt, want, want+want/2, d)
		}
	}
	if d := Backoff(40, time.Second); d > maxBackoff+maxBackoff/2 {
		t.Errorf("expected capped delay, got %v", d)
	}
}
