package ai

import (
	"context"
	"fmt"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/prompt"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the part of *genai.Models the Gemini backend uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini sends the full channel prompt, history included, as a single text.
type Gemini struct {
	models    contentGenerator
	modelName string
	builder   prompt.Builder
}

func NewGemini(ctx context.Context, apiKey, modelName string, builder prompt.Builder) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return newGemini(client.Models, modelName, builder), nil
}

func newGemini(models contentGenerator, modelName string, builder prompt.Builder) *Gemini {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &Gemini{models: models, modelName: modelName, builder: builder}
}

func (g *Gemini) Generate(ctx context.Context, current string, history []domain.Message, channel domain.ChannelID) (string, error) {
	text := g.builder.Full(current, history, channel)
	res, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(text), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return res.Text(), nil
}
