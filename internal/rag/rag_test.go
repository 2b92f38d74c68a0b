package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"digital-dean/internal/chunker"
	"digital-dean/internal/models"
	"digital-dean/internal/parser"
	"digital-dean/internal/quiz"
)

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, f.err
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1}, f.err
}

type fakeSearcher struct {
	matches []models.RetrievalMatch
	got     models.RetrievalParams
}

func (f *fakeSearcher) Query(_ context.Context, _ []float32, threshold float32, topK int) ([]models.RetrievalMatch, error) {
	f.got = models.RetrievalParams{Threshold: threshold, TopK: topK}
	return f.matches, nil
}

type fakeLLM struct {
	reply  string
	prompt string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, nil
}

type fakeIngester struct{ got []models.Chunk }

func (f *fakeIngester) Ingest(_ context.Context, chunks []models.Chunk) (int, error) {
	f.got = chunks
	return len(chunks), nil
}

var profiles = Profiles{
	Tutoring: models.RetrievalParams{Threshold: 0.5, TopK: 4},
	Quiz:     models.RetrievalParams{Threshold: 0.4, TopK: 5},
	Grading:  models.RetrievalParams{Threshold: 0.4, TopK: 3},
}

func newDean(store *fakeSearcher, llm *fakeLLM, ing Ingester) *Dean {
	return NewDean(Deps{
		Loader:    parser.NewLoader(),
		Chunking:  chunker.DefaultConfig(),
		Ingester:  ing,
		Retriever: NewRetriever(&fakeEmbedder{}, store),
		LLM:       llm,
		Profiles:  profiles,
	})
}

func TestRetrieve_NoMatchesIsNil(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, &fakeSearcher{})
	block, err := r.Retrieve(context.Background(), "q", profiles.Tutoring)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block != nil {
		t.Errorf("expected nil block, got %+v", block)
	}
}

func TestRetrieve_JoinsMatchesInStoreOrder(t *testing.T) {
	store := &fakeSearcher{matches: []models.RetrievalMatch{{Content: "second best", Score: 0.6}, {Content: "best", Score: 0.9}}}
	block, err := NewRetriever(&fakeEmbedder{}, store).Retrieve(context.Background(), "q", profiles.Quiz)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block == nil || block.Text != "second best\n\nbest" {
		t.Fatalf("unexpected block %+v", block)
	}
	if store.got != profiles.Quiz {
		t.Errorf("expected quiz profile to reach the store, got %+v", store.got)
	}
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{err: errors.New("down")}, &fakeSearcher{})
	if _, err := r.Retrieve(context.Background(), "q", profiles.Tutoring); err == nil {
		t.Fatal("expected error")
	}
}

func TestIngestDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte(strings.Repeat("Cells are the unit of life. ", 100)), 0o644)
	ing := &fakeIngester{}

	res, err := newDean(&fakeSearcher{}, &fakeLLM{}, ing).IngestDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ChunksStored != len(ing.got) || res.ChunksStored < 3 {
		t.Errorf("expected all chunks stored, got %d of %d", res.ChunksStored, len(ing.got))
	}
}

func TestIngestDocumentAs_RecordsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "3f2a9c.txt")
	os.WriteFile(path, []byte(strings.Repeat("Cells are the unit of life. ", 100)), 0o644)
	ing := &fakeIngester{}

	if _, err := newDean(&fakeSearcher{}, &fakeLLM{}, ing).IngestDocumentAs(context.Background(), path, "biology.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ing.got) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range ing.got {
		if c.Source != "biology.txt" {
			t.Fatalf("expected source biology.txt, got %q", c.Source)
		}
	}
}

func TestIngestDocument_Unreadable(t *testing.T) {
	_, err := newDean(&fakeSearcher{}, &fakeLLM{}, &fakeIngester{}).IngestDocument(context.Background(), "/nope/missing.pdf")
	if !errors.Is(err, models.ErrUnreadableDocument) {
		t.Fatalf("expected ErrUnreadableDocument, got %v", err)
	}
}

func TestAnswerQuestion_UsesTutoringProfile(t *testing.T) {
	store := &fakeSearcher{matches: []models.RetrievalMatch{{Content: "ATP is energy currency"}}}
	llm := &fakeLLM{reply: "ATP stores energy."}
	reply, err := newDean(store, llm, nil).AnswerQuestion(context.Background(), "What is ATP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Reply != "ATP stores energy." {
		t.Errorf("unexpected reply %q", reply.Reply)
	}
	if store.got != profiles.Tutoring {
		t.Errorf("expected tutoring profile, got %+v", store.got)
	}
	if !strings.Contains(llm.prompt, "ATP is energy currency") {
		t.Error("expected context in prompt")
	}
}

func TestAnswerQuestion_WithoutContextStillAnswers(t *testing.T) {
	llm := &fakeLLM{reply: "This isn't in your syllabus, but..."}
	if _, err := newDean(&fakeSearcher{}, llm, nil).AnswerQuestion(context.Background(), "Who won in 1966"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(llm.prompt, models.NoContextNotice) {
		t.Error("expected missing context notice in prompt")
	}
}

const quizReply = "Here is your quiz:\n```json\n[" +
	`{"question":"q1","options":["A) a","B) b","C) c","D) d"],"answer":"A"},` +
	`{"question":"q2","options":["A) a","B) b","C) c","D) d"],"answer":"B"},` +
	`{"question":"q3","options":["A) a","B) b","C) c","D) d"],"answer":"C"},` +
	`{"question":"q4","options":["A) a","B) b","C) c","D) d"],"answer":"D"},` +
	`{"question":"q5","options":["A) a","B) b","C) c","D) d"],"answer":"A"}` +
	"]\n```"

func TestGenerateQuiz(t *testing.T) {
	store := &fakeSearcher{matches: []models.RetrievalMatch{{Content: "photosynthesis"}}}
	session, err := newDean(store, &fakeLLM{reply: quizReply}, nil).GenerateQuiz(context.Background(), "Photosynthesis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID == "" || session.State() != quiz.StateCreated {
		t.Errorf("unexpected session %s in state %s", session.ID, session.State())
	}
	if _, total := session.Score(); total != 5 {
		t.Errorf("expected 5 questions, got %d", total)
	}
	if store.got != profiles.Quiz {
		t.Errorf("expected quiz profile, got %+v", store.got)
	}
}

func TestGenerateQuiz_NoContext(t *testing.T) {
	llm := &fakeLLM{}
	_, err := newDean(&fakeSearcher{}, llm, nil).GenerateQuiz(context.Background(), "Quantum gravity")
	if !errors.Is(err, models.ErrNoContextFound) {
		t.Fatalf("expected ErrNoContextFound, got %v", err)
	}
	if llm.prompt != "" {
		t.Error("model should not be called without context")
	}
}

func TestGenerateQuiz_InvalidQuestionsAreMalformed(t *testing.T) {
	store := &fakeSearcher{matches: []models.RetrievalMatch{{Content: "x"}}}
	llm := &fakeLLM{reply: `[{"question":"q","options":["A) only"],"answer":"A"}]`}
	_, err := newDean(store, llm, nil).GenerateQuiz(context.Background(), "x")
	if !errors.Is(err, models.ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
	if !errors.Is(err, quiz.ErrInvalidQuiz) {
		t.Errorf("expected the validation error to be wrapped, got %v", err)
	}
}

func TestGradeTextSubmission(t *testing.T) {
	store := &fakeSearcher{matches: []models.RetrievalMatch{{Content: "mitosis"}}}
	llm := &fakeLLM{reply: `{"score": "7/10", "feedback": "Good"}`}
	res, err := newDean(store, llm, nil).GradeTextSubmission(context.Background(), "Mitosis", "Cells split")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != "7/10" || res.Feedback != "Good" {
		t.Errorf("unexpected result %+v", res)
	}
	if store.got != profiles.Grading {
		t.Errorf("expected grading profile, got %+v", store.got)
	}
}

func TestGradeTextSubmission_NoContext(t *testing.T) {
	_, err := newDean(&fakeSearcher{}, &fakeLLM{}, nil).GradeTextSubmission(context.Background(), "x", "y")
	if !errors.Is(err, models.ErrNoSyllabusContext) {
		t.Fatalf("expected ErrNoSyllabusContext, got %v", err)
	}
}
