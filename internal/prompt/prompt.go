package prompt

import (
	"fmt"

	"digital-dean/internal/models"

	"github.com/tmc/langchaingo/prompts"
)

// TaskKind selects the prompt a Builder renders
type TaskKind int

const (
	Tutoring TaskKind = iota
	Quiz
	GradingText
	GradingVision
)

func (k TaskKind) String() string {
	switch k {
	case Tutoring:
		return "tutoring"
	case Quiz:
		return "quiz"
	case GradingText:
		return "grading-text"
	case GradingVision:
		return "grading-vision"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// Payload carries the task input: the question or topic, plus the student's work when grading text
type Payload struct {
	Subject    string
	Submission string
}

// Builder renders task prompts from the context block and payload
type Builder struct {
	templates map[TaskKind]prompts.PromptTemplate
}

var inputVariables = []string{"context", "subject", "submission", "questions", "options"}

func NewBuilder() *Builder {
	return &Builder{templates: map[TaskKind]prompts.PromptTemplate{
		Tutoring:      prompts.NewPromptTemplate(models.TutorPromptTemplate, inputVariables),
		Quiz:          prompts.NewPromptTemplate(models.QuizPromptTemplate, inputVariables),
		GradingText:   prompts.NewPromptTemplate(models.GradeTextPromptTemplate, inputVariables),
		GradingVision: prompts.NewPromptTemplate(models.GradeVisionPromptTemplate, inputVariables),
	}}
}

// Build renders the prompt for kind. A nil block is stated explicitly in the prompt.
func (b *Builder) Build(kind TaskKind, block *models.ContextBlock, payload Payload) (string, error) {
	tmpl, ok := b.templates[kind]
	if !ok {
		return "", fmt.Errorf("no prompt template for %s", kind)
	}
	context := models.NoContextNotice
	if block != nil {
		context = block.Text
	}
	out, err := tmpl.Format(map[string]any{
		"context":    context,
		"subject":    payload.Subject,
		"submission": payload.Submission,
		"questions":  models.QuizQuestions,
		"options":    models.QuizOptions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", kind, err)
	}
	return out, nil
}
