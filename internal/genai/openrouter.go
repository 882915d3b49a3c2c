package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenRouterModel auto-selects the best available free model and
// avoids invalid-model errors when specific models are deprecated.
const DefaultOpenRouterModel = "meta-llama/llama-3.2-3b-instruct:free"

// DefaultOpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig holds configuration for the OpenRouter backend.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenRouterGenerator talks to OpenRouter through the OpenAI SDK.
type OpenRouterGenerator struct {
	client openai.Client
	model  string
}

// NewOpenRouter creates an OpenRouter-backed generator.
func NewOpenRouter(cfg OpenRouterConfig) (*OpenRouterGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenRouterModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHeader("X-Title", "Telegram Userbot AI"),
	)

	return &OpenRouterGenerator{client: client, model: cfg.Model}, nil
}

// Generate implements the Generator interface.
func (g *OpenRouterGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.Text == "" {
		return EmptyInputReply, nil
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(req)),
			openai.UserMessage(req.Text),
		},
		Temperature: openai.Float(0.8),
		MaxTokens:   openai.Int(300),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return "", &Error{RateLimited: apierr.StatusCode == http.StatusTooManyRequests, Err: err}
		}
		return "", &Error{Err: err}
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", &Error{Err: fmt.Errorf("empty completion from model %s", g.model)}
	}

	return completion.Choices[0].Message.Content, nil
}
