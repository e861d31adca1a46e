package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LLMClient is the interface to the language model used for recipe
// extraction, tag enrichment, suggestions and taste insights.
type LLMClient interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GenerateFromImage(ctx context.Context, prompt string, imageFormat string, imageData []byte) (string, error)
	Close() error
}

type geminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiClient creates a Gemini-backed LLM client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (LLMClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &geminiClient{client: client, model: client.GenerativeModel(model)}, nil
}

func (c *geminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return textFromResponse(resp)
}

func (c *geminiClient) GenerateFromImage(ctx context.Context, prompt string, imageFormat string, imageData []byte) (string, error) {
	resp, err := c.model.GenerateContent(ctx,
		genai.ImageData(imageFormat, imageData),
		genai.Text(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from image: %w", err)
	}
	return textFromResponse(resp)
}

func (c *geminiClient) Close() error {
	return c.client.Close()
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("generated content is not text")
	}
	return string(text), nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// sometimes wrap around JSON responses despite instructions not to.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
