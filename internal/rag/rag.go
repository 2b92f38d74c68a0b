package rag

import (
	"context"
	"fmt"

	"digital-dean/internal/chunker"
	"digital-dean/internal/config"
	"digital-dean/internal/grading"
	"digital-dean/internal/helper"
	"digital-dean/internal/models"
	"digital-dean/internal/prompt"
	"digital-dean/internal/quiz"
	"digital-dean/internal/structured"

	"github.com/rs/zerolog/log"
)

// Ingester writes chunks to the vector store
type Ingester interface {
	Ingest(ctx context.Context, chunks []models.Chunk) (int, error)
}

// Grader grades an answer image
type Grader interface {
	Grade(ctx context.Context, topic, imagePath string) (*models.GradingResult, error)
}

// Profiles holds the retrieval settings for each use
type Profiles struct {
	Tutoring models.RetrievalParams
	Quiz     models.RetrievalParams
	Grading  models.RetrievalParams
}

func ProfilesFromConfig(cfg *config.RAGConfig) Profiles {
	return Profiles{Tutoring: cfg.Tutoring, Quiz: cfg.Quiz, Grading: cfg.Grading}
}

// IngestResult reports how many chunks a document produced and stored
type IngestResult struct {
	ChunksStored int `json:"chunks_stored"`
}

// Reply is a tutoring answer
type Reply struct {
	Reply string `json:"reply"`
}

// Dean is the tutoring service used by the CLI and HTTP front ends
type Dean struct {
	loader    models.DocumentLoader
	chunking  chunker.Config
	ingester  Ingester
	retriever *Retriever
	llm       models.TextGenerator
	grader    Grader
	prompts   *prompt.Builder
	profiles  Profiles
}

// Deps are the collaborators a Dean is built from
type Deps struct {
	Loader    models.DocumentLoader
	Chunking  chunker.Config
	Ingester  Ingester
	Retriever *Retriever
	LLM       models.TextGenerator
	Grader    Grader
	Prompts   *prompt.Builder
	Profiles  Profiles
}

func NewDean(d Deps) *Dean {
	if d.Prompts == nil {
		d.Prompts = prompt.NewBuilder()
	}
	return &Dean{
		loader:    d.Loader,
		chunking:  d.Chunking,
		ingester:  d.Ingester,
		retriever: d.Retriever,
		llm:       d.LLM,
		grader:    d.Grader,
		prompts:   d.Prompts,
		profiles:  d.Profiles,
	}
}

// LoadChunks loads and chunks a document without storing it
func (d *Dean) LoadChunks(path string) ([]models.Chunk, error) {
	return d.loadChunks(path, "")
}

func (d *Dean) loadChunks(path, source string) ([]models.Chunk, error) {
	doc, err := d.loader.Load(path)
	if err != nil {
		return nil, err
	}
	if source != "" {
		doc.Source = source
	}
	return chunker.Split(doc, d.chunking)
}

// IngestDocument loads, chunks and stores the document at path
func (d *Dean) IngestDocument(ctx context.Context, path string) (IngestResult, error) {
	return d.IngestDocumentAs(ctx, path, "")
}

// IngestDocumentAs is IngestDocument for a file saved under a temporary name: the chunks
// record source instead of the file name.
func (d *Dean) IngestDocumentAs(ctx context.Context, path, source string) (IngestResult, error) {
	chunks, err := d.loadChunks(path, source)
	if err != nil {
		return IngestResult{}, err
	}
	if len(chunks) == 0 {
		log.Info().Str("file", path).Msg("No chunks generated from content")
		return IngestResult{}, nil
	}
	n, err := d.ingester.Ingest(ctx, chunks)
	if err != nil {
		return IngestResult{ChunksStored: n}, fmt.Errorf("ingesting %s: %w", path, err)
	}
	log.Info().Str("file", path).Int("chunks", n).Msg("Document stored")
	return IngestResult{ChunksStored: n}, nil
}

// AnswerQuestion answers from the syllabus, falling back to general knowledge when nothing matches
func (d *Dean) AnswerQuestion(ctx context.Context, question string) (Reply, error) {
	block, err := d.retriever.Retrieve(ctx, question, d.profiles.Tutoring)
	if err != nil {
		return Reply{}, err
	}
	p, err := d.prompts.Build(prompt.Tutoring, block, prompt.Payload{Subject: question})
	if err != nil {
		return Reply{}, err
	}
	text, err := d.llm.Generate(ctx, p)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Reply: text}, nil
}

// GenerateQuiz builds a five question quiz on topic from the syllabus. It fails with
// models.ErrNoContextFound when the syllabus does not cover the topic.
func (d *Dean) GenerateQuiz(ctx context.Context, topic string) (*quiz.Session, error) {
	block, err := d.retriever.Retrieve(ctx, topic, d.profiles.Quiz)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrNoContextFound, topic)
	}
	p, err := d.prompts.Build(prompt.Quiz, block, prompt.Payload{Subject: topic})
	if err != nil {
		return nil, err
	}
	raw, err := d.llm.Generate(ctx, p)
	if err != nil {
		return nil, err
	}

	var questions []quiz.Question
	if err := structured.Decode(raw, structured.Array, &questions); err != nil {
		return nil, err
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	session, err := quiz.New(id, topic, questions)
	if err != nil {
		return nil, &models.MalformedOutputError{Raw: raw, Err: err}
	}
	log.Info().Str("topic", topic).Str("session", id).Int("questions", len(questions)).Msg("Quiz generated")
	return session, nil
}

// GradeImageSubmission grades a handwritten answer image; the image is deleted afterwards
func (d *Dean) GradeImageSubmission(ctx context.Context, topic, imagePath string) (*models.GradingResult, error) {
	return d.grader.Grade(ctx, topic, imagePath)
}

// GradeTextSubmission grades a typed answer against the syllabus
func (d *Dean) GradeTextSubmission(ctx context.Context, topic, submission string) (*models.GradingResult, error) {
	block, err := d.retriever.Retrieve(ctx, topic, d.profiles.Grading)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrNoSyllabusContext, topic)
	}
	p, err := d.prompts.Build(prompt.GradingText, block, prompt.Payload{Subject: topic, Submission: submission})
	if err != nil {
		return nil, err
	}
	raw, err := d.llm.Generate(ctx, p)
	if err != nil {
		return nil, err
	}
	return structured.ParseGrade(raw)
}

var _ Grader = (*grading.Workflow)(nil)
