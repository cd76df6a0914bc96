package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"promptrelay/internal/logger"
	"promptrelay/pkg/relaytypes"
)

// DefaultGeminiModel is used when no model override is given.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements the LLMClient interface for the Google Gemini API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	client  *genai.Client
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(apiKey, baseURL string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return "gemini"
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the Gemini client if it hasn't been initialized yet.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("google API key not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c.client = client
	logger.Debug("Gemini client initialized", "provider", "gemini")
	return nil
}

func (c *GeminiClient) model(req *relaytypes.CompletionRequest) string {
	if req.Model == "" {
		return DefaultGeminiModel
	}
	return req.Model
}

func (c *GeminiClient) generationConfig(req *relaytypes.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	switch {
	case req.MaxTokens > math.MaxInt32:
		config.MaxOutputTokens = math.MaxInt32
	case req.MaxTokens > 0:
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	return config
}

// SendCompletion sends a generate-content request to Gemini.
func (c *GeminiClient) SendCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (string, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return "", fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	model := c.model(req)
	logger.Debug("Sending Gemini request", "model", model)

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), c.generationConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	content := responseText(result)
	logger.Debug("Gemini response received", "content_length", len(content))
	return content, nil
}

// StreamCompletion sends a streaming generate-content request to Gemini.
func (c *GeminiClient) StreamCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (<-chan relaytypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	model := c.model(req)
	logger.Debug("Sending Gemini streaming request", "model", model)

	responses := c.client.Models.GenerateContentStream(ctx, model, genai.Text(req.Prompt), c.generationConfig(req))

	ch := make(chan relaytypes.StreamChunk)
	go func() {
		defer close(ch)

		for result, err := range responses {
			if err != nil {
				emit(ctx, ch, relaytypes.StreamChunk{Done: true, Error: fmt.Errorf("gemini request failed: %w", err)})
				return
			}
			text := responseText(result)
			if text == "" {
				continue
			}
			if !emit(ctx, ch, relaytypes.StreamChunk{Content: text}) {
				return
			}
		}
		emit(ctx, ch, relaytypes.StreamChunk{Done: true})
	}()

	return ch, nil
}

// responseText concatenates the text parts of the first candidate, skipping thought summaries.
func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
