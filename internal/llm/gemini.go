package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"answervet/internal/logging"
)

// GeminiClient implements Client for the Google Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// GeminiConfig holds Gemini client configuration.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-3-flash-preview",
		Timeout: 2 * time.Minute,
	}
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-3-flash-preview"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Complete sends a prompt and returns the text response.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, nil, prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var sys *genai.Content
	if systemPrompt != "" {
		sys = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, sys, userPrompt)
}

func (c *GeminiClient) generate(ctx context.Context, system *genai.Content, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	logging.APIDebug("Gemini request: model=%s, prompt_len=%d", c.model, len(prompt))

	cfg := &genai.GenerateContentConfig{}
	if system != nil {
		cfg.SystemInstruction = system
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			logging.APIError("Gemini call timed out after %s", time.Since(start))
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		logging.APIError("Gemini call failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}

	logging.API("Gemini response: model=%s, len=%d, elapsed=%s", c.model, len(text), time.Since(start))
	return text, nil
}
