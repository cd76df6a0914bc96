package relay

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptrelay/pkg/relaytypes"
)

func TestReadPrompt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{name: "plain", input: "Hello", expected: "Hello"},
		{name: "trailing newline from echo", input: "Hello\n", expected: "Hello"},
		{name: "multi-line", input: "\nfirst\nsecond\n", expected: "first\nsecond"},
		{name: "empty", input: "", err: relaytypes.ErrNoInput},
		{name: "whitespace only", input: " \t\r\n ", err: relaytypes.ErrNoInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := ReadPrompt(strings.NewReader(tt.input))
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Empty(t, prompt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, prompt)
		})
	}
}

func TestReadPrompt_NilReader(t *testing.T) {
	_, err := ReadPrompt(nil)
	assert.ErrorIs(t, err, relaytypes.ErrNoInput)
}

func TestReadPrompt_ReadError(t *testing.T) {
	_, err := ReadPrompt(iotest.ErrReader(errors.New("stdin closed")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdin closed")
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "no input", err: relaytypes.ErrNoInput, expected: "Error: no input provided"},
		{
			name:     "multi-line upstream error",
			err:      fmt.Errorf("anthropic request failed: %w", errors.New("POST \"https://api.anthropic.com/v1/messages\": 401 Unauthorized\n{\"type\":\"error\"}")),
			expected: "Error: anthropic request failed: POST \"https://api.anthropic.com/v1/messages\": 401 Unauthorized {\"type\":\"error\"}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatError(tt.err)
			assert.Equal(t, tt.expected, got)
			assert.NotContains(t, got, "\n")
		})
	}
}
