// Package relaytypes defines the types shared between the relay and its backends.
// This file contains the request, streaming and client abstractions.
package relaytypes

import "context"

// CompletionRequest is the single request a relay run sends to a backend.
type CompletionRequest struct {
	Prompt    string // Trimmed, non-empty prompt text
	Model     string // Model identifier, passed through opaquely
	MaxTokens int64  // Upper bound on generated tokens, 0 means backend default
}

// StreamChunk represents a single chunk of streaming response.
type StreamChunk struct {
	Content string // The text content of this chunk
	Done    bool   // Whether this is the final chunk
	Error   error  // Any error that occurred during streaming
}

// LLMClient defines the interface for text-generation backends.
// This interface abstracts the hosted APIs and the external CLI and
// gives the relay a single way to reach either of them.
type LLMClient interface {
	// SendCompletion sends one request and returns the full response text.
	SendCompletion(ctx context.Context, req *CompletionRequest) (string, error)

	// StreamCompletion sends one streaming request.
	// It returns a channel that receives fragments in generation order and is
	// closed after the final chunk. Errors detected before the first fragment
	// are returned directly; later ones arrive as a chunk with Error set.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error)

	// GetProviderName returns the name of the backend (e.g., "anthropic", "claude-cli").
	GetProviderName() string

	// IsConfigured returns true if the client has what it needs to make requests.
	IsConfigured() bool
}

// ClientFactory resolves a provider name to a ready-to-use client.
// Credential and dependency checks happen here, before any request is made.
type ClientFactory interface {
	GetClient(provider string) (LLMClient, error)
}
