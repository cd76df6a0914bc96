package relay

import (
	"fmt"
	"io"
	"strings"

	"promptrelay/pkg/relaytypes"
)

// ReadPrompt consumes r in full and returns its content with surrounding
// whitespace trimmed. Empty or whitespace-only input yields relaytypes.ErrNoInput.
func ReadPrompt(r io.Reader) (string, error) {
	if r == nil {
		return "", relaytypes.ErrNoInput
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", relaytypes.ErrNoInput
	}
	return prompt, nil
}

// FormatError renders err as the single line written to stderr.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	return "Error: " + msg
}
