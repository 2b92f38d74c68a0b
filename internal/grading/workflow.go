package grading

import (
	"context"
	"fmt"

	"digital-dean/internal/models"
	"digital-dean/internal/prompt"
	"digital-dean/internal/structured"

	"github.com/rs/zerolog/log"
)

// Retriever fetches the syllabus context for a query
type Retriever interface {
	Retrieve(ctx context.Context, query string, params models.RetrievalParams) (*models.ContextBlock, error)
}

// Workflow grades a handwritten answer image against the syllabus
type Workflow struct {
	retriever Retriever
	vision    models.VisionGenerator
	prompts   *prompt.Builder
	params    models.RetrievalParams
	fs        FileSystem
}

func NewWorkflow(retriever Retriever, vision models.VisionGenerator, prompts *prompt.Builder, params models.RetrievalParams) *Workflow {
	return &Workflow{
		retriever: retriever,
		vision:    vision,
		prompts:   prompts,
		params:    params,
		fs:        osFS{},
	}
}

// Grade grades the image at imagePath for topic. The image file is deleted before Grade
// returns, whatever the outcome.
func (w *Workflow) Grade(ctx context.Context, topic, imagePath string) (*models.GradingResult, error) {
	path := CleanPath(imagePath)
	img := newScopedImage(w.fs, path)
	defer img.release()

	logger := log.With().Str("topic", topic).Str("path", path).Logger()

	block, err := w.retriever.Retrieve(ctx, topic, w.params)
	if err != nil {
		return nil, fmt.Errorf("retrieving syllabus context: %w", err)
	}
	if block == nil {
		logger.Info().Msg("No syllabus context for grading topic")
		return nil, fmt.Errorf("%w: %q", models.ErrNoSyllabusContext, topic)
	}

	p, err := w.prompts.Build(prompt.GradingVision, block, prompt.Payload{Subject: topic})
	if err != nil {
		return nil, err
	}

	image, err := img.open()
	if err != nil {
		logger.Warn().Err(err).Msg("Cannot read submitted image")
		return nil, err
	}
	reply, err := w.vision.GenerateWithImage(ctx, p, image)
	img.close()
	if err != nil {
		return nil, fmt.Errorf("vision model: %w", err)
	}

	result, err := structured.ParseGrade(reply)
	if err != nil {
		logger.Warn().Err(err).Msg("Unparseable grading reply")
		return nil, err
	}
	logger.Info().Str("score", result.Score).Msg("Graded submission")
	return result, nil
}
