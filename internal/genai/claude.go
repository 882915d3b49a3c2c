package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeConfig holds configuration for the Claude backend.
type ClaudeConfig struct {
	APIKey string
	Model  string
}

// ClaudeGenerator talks to the Anthropic API.
type ClaudeGenerator struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude-backed generator.
func NewClaude(cfg ClaudeConfig) (*ClaudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	return &ClaudeGenerator{client: client, model: cfg.Model}, nil
}

// Generate implements the Generator interface.
func (g *ClaudeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.Text == "" {
		return EmptyInputReply, nil
	}

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 300,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text)),
		},
		Temperature: anthropic.Float(0.8),
	})
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return "", &Error{RateLimited: apierr.StatusCode == http.StatusTooManyRequests, Err: err}
		}
		return "", &Error{Err: err}
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Err: fmt.Errorf("empty completion from model %s", g.model)}
	}

	return sb.String(), nil
}
