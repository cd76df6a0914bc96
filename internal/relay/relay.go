// Package relay implements the prompt relay: one prompt in on stdin, one
// backend call, the response out on stdout in full or as streamed fragments
// followed by a single newline.
package relay

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"promptrelay/internal/logger"
	"promptrelay/pkg/relaytypes"
)

// Options holds the per-invocation settings. They are fixed for the whole run.
type Options struct {
	Stream    bool
	Model     string
	MaxTokens int64
}

// flusher is implemented by buffered writers that must be flushed per fragment.
type flusher interface {
	Flush() error
}

// Relay connects stdin, one backend and stdout.
type Relay struct {
	factory  relaytypes.ClientFactory
	provider string
	logger   *log.Logger

	newRequestID func() string
}

// New creates a relay that resolves provider through factory.
func New(factory relaytypes.ClientFactory, provider string) *Relay {
	return &Relay{
		factory:      factory,
		provider:     provider,
		logger:       logger.NewStyledLogger("Relay"),
		newRequestID: uuid.NewString,
	}
}

// Run performs one relay. Input is read and validated before the backend is
// resolved, and the backend is resolved before any request is made, so input
// and configuration errors never reach the backend. On error nothing is written
// to stdout unless streaming had already emitted fragments.
func (r *Relay) Run(ctx context.Context, stdin io.Reader, stdout io.Writer, opts Options) error {
	requestID := r.newRequestID()
	logger.RelayStep(requestID, "read_prompt")

	prompt, err := ReadPrompt(stdin)
	if err != nil {
		return err
	}

	logger.RelayStep(requestID, "resolve_client", "provider", r.provider)
	client, err := r.factory.GetClient(r.provider)
	if err != nil {
		return err
	}

	req := &relaytypes.CompletionRequest{
		Prompt:    prompt,
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
	}

	r.logger.Debug("Invoking backend",
		"request_id", requestID,
		"provider", client.GetProviderName(),
		"model", req.Model,
		"stream", opts.Stream,
		"prompt_length", len(prompt))

	if opts.Stream {
		err = r.stream(ctx, client, req, stdout)
	} else {
		err = r.send(ctx, client, req, stdout)
	}
	if err != nil {
		r.logger.Debug("Relay failed", "request_id", requestID, "error", err)
		return err
	}

	logger.RelayStep(requestID, "done")
	return nil
}

// send issues one request and writes the full response plus a newline.
func (r *Relay) send(ctx context.Context, client relaytypes.LLMClient, req *relaytypes.CompletionRequest, stdout io.Writer) error {
	text, err := client.SendCompletion(ctx, req)
	if err != nil {
		return err
	}
	return writeFragment(stdout, text+"\n")
}

// stream writes each fragment as it arrives and a newline after the last one.
// A failing stream leaves written fragments in place and skips the newline.
func (r *Relay) stream(ctx context.Context, client relaytypes.LLMClient, req *relaytypes.CompletionRequest, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := client.StreamCompletion(ctx, req)
	if err != nil {
		return err
	}

	fragments := 0
	done := false
	for chunk := range chunks {
		if chunk.Error != nil {
			return chunk.Error
		}
		if chunk.Content != "" {
			if err := writeFragment(stdout, chunk.Content); err != nil {
				return err
			}
			fragments++
		}
		if chunk.Done {
			done = true
			break
		}
	}

	// A producer that stops without its final chunk was cut short.
	if !done {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s stream ended before completion", client.GetProviderName())
	}

	r.logger.Debug("Stream finished", "fragments", fragments)
	return writeFragment(stdout, "\n")
}

// writeFragment writes s and flushes the writer when it buffers.
func writeFragment(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
