package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string
	// Project and Region switch the client to the Vertex AI backend.
	Project string
	Region  string
}

// GeminiGenerator talks to the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey: cfg.APIKey,
	}
	if cfg.Project != "" && cfg.Region != "" {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = cfg.Project
		clientConfig.Location = cfg.Region
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: cfg.Model}, nil
}

// Generate implements the Generator interface.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.Text == "" {
		return EmptyInputReply, nil
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(req), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.8),
		MaxOutputTokens:   300,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Text), config)
	if err != nil {
		var apierr genai.APIError
		if errors.As(err, &apierr) {
			return "", &Error{RateLimited: apierr.Code == http.StatusTooManyRequests, Err: err}
		}
		return "", &Error{Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &Error{Err: fmt.Errorf("empty completion from model %s", g.model)}
	}

	return text, nil
}
