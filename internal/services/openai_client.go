package services

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"promptrelay/internal/logger"
	"promptrelay/pkg/relaytypes"
)

// DefaultOpenAIModel is used when no model override is given.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIClient implements the LLMClient interface for OpenAI's chat completions API.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *openai.Client
}

// NewOpenAIClient creates a new OpenAI client with lazy initialization.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return "openai"
}

// IsConfigured returns true if the client has a valid API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}

	options := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		options = append(options, option.WithBaseURL(c.baseURL))
	}

	client := openai.NewClient(options...)
	c.client = &client

	logger.Debug("OpenAI client initialized", "provider", "openai")
	return nil
}

// buildParams converts a relay request into chat completion parameters.
func (c *OpenAIClient) buildParams(req *relaytypes.CompletionRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	return params
}

// SendCompletion sends a chat completion request to OpenAI.
func (c *OpenAIClient) SendCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (string, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}

	params := c.buildParams(req)
	logger.Debug("Sending OpenAI request", "model", params.Model)

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai request failed: no response choices returned")
	}

	content := completion.Choices[0].Message.Content
	logger.Debug("OpenAI response received", "content_length", len(content))
	return content, nil
}

// StreamCompletion sends a streaming chat completion request to OpenAI.
func (c *OpenAIClient) StreamCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (<-chan relaytypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}

	params := c.buildParams(req)
	logger.Debug("Sending OpenAI streaming request", "model", params.Model)

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	responseChan := make(chan relaytypes.StreamChunk)
	go func() {
		defer close(responseChan)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !emit(ctx, responseChan, relaytypes.StreamChunk{Content: chunk.Choices[0].Delta.Content}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			emit(ctx, responseChan, relaytypes.StreamChunk{Done: true, Error: fmt.Errorf("openai request failed: %w", err)})
			return
		}
		emit(ctx, responseChan, relaytypes.StreamChunk{Done: true})
	}()

	return responseChan, nil
}
