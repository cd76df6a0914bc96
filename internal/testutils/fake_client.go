package testutils

import (
	"context"
	"strings"
	"sync"

	"promptrelay/pkg/relaytypes"
)

// FakeClient is an in-memory LLMClient that records requests.
type FakeClient struct {
	Provider string

	// Response is returned by SendCompletion.
	Response string
	// Fragments are streamed in order by StreamCompletion.
	Fragments []string
	// Err is returned by both calls before anything is produced.
	Err error
	// StreamErr is delivered after all Fragments have been streamed.
	StreamErr error
	// BeforeFragment, when set, runs in the producer before fragment i is sent.
	BeforeFragment func(ctx context.Context, i int)
	// OmitDone closes the stream after Fragments without sending the final chunk.
	OmitDone bool

	mu       sync.Mutex
	requests []relaytypes.CompletionRequest
}

// GetProviderName returns the configured provider name or "fake".
func (c *FakeClient) GetProviderName() string {
	if c.Provider == "" {
		return "fake"
	}
	return c.Provider
}

// IsConfigured always reports true.
func (c *FakeClient) IsConfigured() bool {
	return true
}

// Requests returns a copy of the requests received so far.
func (c *FakeClient) Requests() []relaytypes.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]relaytypes.CompletionRequest(nil), c.requests...)
}

func (c *FakeClient) record(req *relaytypes.CompletionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, *req)
}

// SendCompletion returns Response, or Fragments joined when Response is empty.
func (c *FakeClient) SendCompletion(_ context.Context, req *relaytypes.CompletionRequest) (string, error) {
	c.record(req)
	if c.Err != nil {
		return "", c.Err
	}
	if c.Response == "" {
		return strings.Join(c.Fragments, ""), nil
	}
	return c.Response, nil
}

// StreamCompletion streams Fragments over an unbuffered channel.
func (c *FakeClient) StreamCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (<-chan relaytypes.StreamChunk, error) {
	c.record(req)
	if c.Err != nil {
		return nil, c.Err
	}

	ch := make(chan relaytypes.StreamChunk)
	go func() {
		defer close(ch)
		send := func(chunk relaytypes.StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i, fragment := range c.Fragments {
			if c.BeforeFragment != nil {
				c.BeforeFragment(ctx, i)
			}
			if !send(relaytypes.StreamChunk{Content: fragment}) {
				return
			}
		}
		if c.OmitDone {
			return
		}
		send(relaytypes.StreamChunk{Done: true, Error: c.StreamErr})
	}()
	return ch, nil
}

// FakeFactory resolves every provider to Client unless Err is set.
type FakeFactory struct {
	Client relaytypes.LLMClient
	Err    error

	mu    sync.Mutex
	calls []string
}

// GetClient records the lookup and returns Client or Err.
func (f *FakeFactory) GetClient(provider string) (relaytypes.LLMClient, error) {
	f.mu.Lock()
	f.calls = append(f.calls, provider)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Client, nil
}

// Calls returns the providers looked up so far.
func (f *FakeFactory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// RecordingWriter records each Write call separately.
type RecordingWriter struct {
	// OnWrite, when set, is called with each write after it is recorded.
	OnWrite func(s string)

	mu     sync.Mutex
	writes []string
}

func (w *RecordingWriter) Write(p []byte) (int, error) {
	s := string(p)
	w.mu.Lock()
	w.writes = append(w.writes, s)
	w.mu.Unlock()
	if w.OnWrite != nil {
		w.OnWrite(s)
	}
	return len(p), nil
}

// Writes returns the recorded writes in order.
func (w *RecordingWriter) Writes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.writes...)
}

// String returns everything written so far.
func (w *RecordingWriter) String() string {
	return strings.Join(w.Writes(), "")
}
