package llmservice

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"digital-dean/internal/config"
	"digital-dean/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// Client generates text, optionally grounded on an image, through a langchaingo model.
// It implements models.TextGenerator and models.VisionGenerator.
type Client struct {
	llm   llms.Model
	model string
}

// NewClient creates a client for the configured backend
func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating LLM client")

	var llm llms.Model
	var err error
	switch llmConfig.Provider {
	case config.ProviderOllama:
		llm, err = ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", llmConfig.Provider, err)
	}
	return NewClientWithModel(llm, llmConfig.Model), nil
}

// NewClientWithModel wraps an existing langchaingo model
func NewClientWithModel(llm llms.Model, model string) *Client {
	return &Client{llm: llm, model: model}
}

// Generate sends a single text prompt
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []llms.ContentPart{llms.TextPart(prompt)})
}

// GenerateWithImage sends a prompt together with the image bytes read from img
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, img models.Image) (string, error) {
	data, err := io.ReadAll(img.Reader)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrImageUnreadable, err)
	}
	return c.generate(ctx, []llms.ContentPart{
		llms.TextPart(prompt),
		llms.BinaryPart(img.MIMEType, data),
	})
}

func (c *Client) generate(ctx context.Context, parts []llms.ContentPart) (string, error) {
	messages := []llms.MessageContent{
		{Role: schema.ChatMessageTypeHuman, Parts: parts},
	}
	resp, err := c.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrGeneration, c.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", models.ErrGeneration, c.model)
	}
	content := thinkTagRe.ReplaceAllString(resp.Choices[0].Content, "")
	return strings.TrimSpace(content), nil
}
