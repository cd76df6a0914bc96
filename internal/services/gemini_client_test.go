package services

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"promptrelay/pkg/relaytypes"
)

func TestNewGeminiClient(t *testing.T) {
	client := NewGeminiClient("google-key", "")
	assert.Equal(t, "gemini", client.GetProviderName())
	assert.True(t, client.IsConfigured())
	assert.Nil(t, client.client)
	assert.False(t, NewGeminiClient("", "").IsConfigured())
}

func TestGeminiClient_GenerationConfig(t *testing.T) {
	client := NewGeminiClient("google-key", "")

	assert.Equal(t, int32(0), client.generationConfig(&relaytypes.CompletionRequest{}).MaxOutputTokens)
	assert.Equal(t, int32(2048), client.generationConfig(&relaytypes.CompletionRequest{MaxTokens: 2048}).MaxOutputTokens)
	assert.Equal(t, int32(math.MaxInt32), client.generationConfig(&relaytypes.CompletionRequest{MaxTokens: math.MaxInt32 + 1}).MaxOutputTokens,
		"values beyond int32 are clamped, never wrapped")
	assert.Equal(t, DefaultGeminiModel, client.model(&relaytypes.CompletionRequest{}))
	assert.Equal(t, "gemini-2.5-pro", client.model(&relaytypes.CompletionRequest{Model: "gemini-2.5-pro"}))
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name     string
		response *genai.GenerateContentResponse
		expected string
	}{
		{name: "nil response", response: nil, expected: ""},
		{name: "no candidates", response: &genai.GenerateContentResponse{}, expected: ""},
		{
			name: "nil content",
			response: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{}},
			},
			expected: "",
		},
		{
			name: "text parts concatenated",
			response: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{{Text: "Hi"}, {Text: " there"}}},
				}},
			},
			expected: "Hi there",
		},
		{
			name: "thought parts skipped",
			response: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{
						{Text: "thinking about greetings", Thought: true},
						{Text: "Hi there"},
					}},
				}},
			},
			expected: "Hi there",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, responseText(tt.response))
		})
	}
}

func TestGeminiClient_SendCompletion(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = capturedRequest{path: r.URL.Path, apiKey: r.Header.Get("X-Goog-Api-Key"), body: string(body)}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi there"}]},"finishReason":"STOP"}]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewGeminiClient("google-key", srv.URL)
	text, err := client.SendCompletion(context.Background(), &relaytypes.CompletionRequest{Prompt: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", text)
	assert.Contains(t, captured.path, DefaultGeminiModel+":generateContent")
	assert.Equal(t, "google-key", captured.apiKey)
	assert.Equal(t, "Hello", gjson.Get(captured.body, "contents.0.parts.0.text").String())
}

func newGeminiServer(t *testing.T, captured *capturedRequest, handler func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			*captured = capturedRequest{path: r.URL.Path + "?" + r.URL.RawQuery, apiKey: r.Header.Get("X-Goog-Api-Key"), body: string(body)}
		}
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeGeminiEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, data := range events {
		_, _ = w.Write([]byte("data: " + data + "\n\n"))
		flusher.Flush()
	}
}

func TestGeminiClient_StreamCompletion(t *testing.T) {
	var captured capturedRequest
	srv := newGeminiServer(t, &captured, func(w http.ResponseWriter) {
		writeGeminiEvents(w,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"greeting the user","thought":true}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi"}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":" there"}]},"finishReason":"STOP"}]}`,
		)
	})

	client := NewGeminiClient("google-key", srv.URL)
	ch, err := client.StreamCompletion(context.Background(), &relaytypes.CompletionRequest{Prompt: "Hello"})
	require.NoError(t, err)

	fragments, streamErr := collect(t, ch)
	require.NoError(t, streamErr)
	assert.Equal(t, []string{"Hi", " there"}, fragments)
	assert.Contains(t, captured.path, DefaultGeminiModel+":streamGenerateContent")
	assert.Contains(t, captured.path, "alt=sse")
	assert.Equal(t, "Hello", gjson.Get(captured.body, "contents.0.parts.0.text").String())
}

func TestGeminiClient_StreamCompletion_ErrorBeforeOutput(t *testing.T) {
	srv := newGeminiServer(t, nil, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	})

	client := NewGeminiClient("bad-key", srv.URL)
	ch, err := client.StreamCompletion(context.Background(), &relaytypes.CompletionRequest{Prompt: "Hello"})
	require.NoError(t, err)

	fragments, streamErr := collect(t, ch)
	assert.Empty(t, fragments)
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "gemini request failed")
	assert.Contains(t, streamErr.Error(), "API key not valid")
}

func TestGeminiClient_StreamCompletion_MidStreamFailure(t *testing.T) {
	srv := newGeminiServer(t, nil, func(w http.ResponseWriter) {
		writeGeminiEvents(w,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi"}]}}]}`,
			`{"candidates":[{"content":`,
		)
	})

	client := NewGeminiClient("google-key", srv.URL)
	ch, err := client.StreamCompletion(context.Background(), &relaytypes.CompletionRequest{Prompt: "Hello"})
	require.NoError(t, err)

	fragments, streamErr := collect(t, ch)
	assert.Equal(t, []string{"Hi"}, fragments)
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "gemini request failed")
}
