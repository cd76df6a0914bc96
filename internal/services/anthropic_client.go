// Package services provides the text-generation backends promptrelay can relay to.
package services

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"promptrelay/internal/logger"
	"promptrelay/pkg/relaytypes"
)

// DefaultAnthropicModel is used when no model override is given.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicClient implements the LLMClient interface for Anthropic's Messages API.
// It provides lazy initialization of the Anthropic client.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	client  *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client with lazy initialization.
// The actual Anthropic client is created only when the first request is made.
func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// GetProviderName returns the provider name for this client.
func (c *AnthropicClient) GetProviderName() string {
	return "anthropic"
}

// IsConfigured returns true if the client has a valid API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the Anthropic client if it hasn't been initialized yet.
func (c *AnthropicClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("anthropic API key not configured")
	}

	// One outbound call per invocation, so the SDK must not retry on its own.
	opts := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}

	client := anthropic.NewClient(opts...)
	c.client = &client

	logger.Debug("Anthropic client initialized", "provider", "anthropic")
	return nil
}

// buildParams converts a relay request into Anthropic message parameters.
func (c *AnthropicClient) buildParams(req *relaytypes.CompletionRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
}

// SendCompletion sends a single non-streaming request to Anthropic.
func (c *AnthropicClient) SendCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (string, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to initialize Anthropic client: %w", err)
	}

	params := c.buildParams(req)
	logger.Debug("Sending Anthropic request", "model", params.Model)

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var content string
	for _, block := range message.Content {
		content += block.Text
	}

	logger.Debug("Anthropic response received", "content_length", len(content), "stop_reason", message.StopReason)
	return content, nil
}

// StreamCompletion sends a streaming request to Anthropic.
// The first event is read synchronously so that connection and
// authentication failures are returned before anything is emitted.
func (c *AnthropicClient) StreamCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (<-chan relaytypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize Anthropic client: %w", err)
	}

	params := c.buildParams(req)
	logger.Debug("Sending Anthropic streaming request", "model", params.Model)

	stream := c.client.Messages.NewStreaming(ctx, params)
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, fmt.Errorf("anthropic request failed: %w", err)
		}
		ch := make(chan relaytypes.StreamChunk, 1)
		ch <- relaytypes.StreamChunk{Done: true}
		close(ch)
		return ch, nil
	}
	first := stream.Current()

	ch := make(chan relaytypes.StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		c.consumeStream(ctx, stream, first, ch)
	}()

	return ch, nil
}

// consumeStream forwards text deltas from the already-read first event and the rest of the stream.
func (c *AnthropicClient) consumeStream(
	ctx context.Context,
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion],
	first anthropic.MessageStreamEventUnion,
	ch chan<- relaytypes.StreamChunk,
) {
	event := first
	for {
		if text, ok := textDelta(event); ok {
			if !emit(ctx, ch, relaytypes.StreamChunk{Content: text}) {
				return
			}
		}
		if !stream.Next() {
			break
		}
		event = stream.Current()
	}

	if err := stream.Err(); err != nil {
		emit(ctx, ch, relaytypes.StreamChunk{Done: true, Error: fmt.Errorf("anthropic stream failed: %w", err)})
		return
	}
	emit(ctx, ch, relaytypes.StreamChunk{Done: true})
}

// textDelta extracts the text of a content_block_delta event.
func textDelta(event anthropic.MessageStreamEventUnion) (string, bool) {
	ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
	if !ok {
		return "", false
	}
	delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
	if !ok || delta.Text == "" {
		return "", false
	}
	return delta.Text, true
}

// emit sends a chunk unless ctx is cancelled first. It reports whether the chunk was delivered.
func emit(ctx context.Context, ch chan<- relaytypes.StreamChunk, chunk relaytypes.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
