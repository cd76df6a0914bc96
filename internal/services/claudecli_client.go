package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"promptrelay/internal/logger"
	"promptrelay/pkg/relaytypes"
)

// DefaultClaudeCLIModel is passed to the CLI when no model override is given.
const DefaultClaudeCLIModel = "claude-sonnet-4-5"

// claudeCLIInstall is the install guidance shown when the CLI is missing.
const claudeCLIInstall = "npm install -g @anthropic-ai/claude-code"

// maxStreamLine bounds a single stream-json line; tool results can be large.
const maxStreamLine = 16 * 1024 * 1024

// ClaudeCLIClient implements the LLMClient interface by running the Claude Code CLI
// in print mode. The prompt goes to the child's stdin and the answer is read from
// its JSON output.
type ClaudeCLIClient struct {
	command    string
	minVersion string
	path       string
	logger     *log.Logger

	// Function fields for testing (can be overridden)
	lookPath   func(file string) (string, error)
	getVersion func(ctx context.Context, path string) (string, error)
}

// NewClaudeCLIClient creates a client for the CLI named by command.
// minVersion is a semver constraint such as ">= 1.0.0"; empty disables the check.
func NewClaudeCLIClient(command, minVersion string) *ClaudeCLIClient {
	if command == "" {
		command = "claude"
	}
	c := &ClaudeCLIClient{
		command:    command,
		minVersion: minVersion,
		logger:     logger.NewStyledLogger("ClaudeCLI"),
		lookPath:   exec.LookPath,
	}
	c.getVersion = c.defaultGetVersion
	return c
}

// GetProviderName returns the provider name for this client.
func (c *ClaudeCLIClient) GetProviderName() string {
	return "claude-cli"
}

// IsConfigured returns true once CheckInstalled has located the CLI.
func (c *ClaudeCLIClient) IsConfigured() bool {
	return c.path != ""
}

// CheckInstalled locates the CLI and verifies its version against the configured constraint.
// Failures are reported as *relaytypes.DependencyError.
func (c *ClaudeCLIClient) CheckInstalled(ctx context.Context) error {
	path, err := c.lookPath(c.command)
	if err != nil {
		c.logger.Debug("Claude CLI not found", "command", c.command, "error", err)
		return &relaytypes.DependencyError{Name: "claude CLI", Install: claudeCLIInstall}
	}

	if c.minVersion != "" {
		constraint, err := semver.NewConstraint(c.minVersion)
		if err != nil {
			return fmt.Errorf("invalid cli.min_version %q: %w", c.minVersion, err)
		}

		raw, err := c.getVersion(ctx, path)
		if err != nil {
			return &relaytypes.DependencyError{Name: "claude CLI", Install: claudeCLIInstall, Err: err}
		}

		version, err := parseCLIVersion(raw)
		if err != nil {
			// Unknown version strings are let through; the CLI itself will complain if it must.
			c.logger.Debug("Could not parse claude CLI version", "output", raw, "error", err)
		} else if !constraint.Check(version) {
			return &relaytypes.DependencyError{
				Name:    "claude CLI",
				Install: claudeCLIInstall,
				Err:     fmt.Errorf("version %s does not satisfy %s", version, c.minVersion),
			}
		} else {
			c.logger.Debug("Found claude CLI", "path", path, "version", version)
		}
	}

	c.path = path
	return nil
}

// defaultGetVersion runs `claude --version`.
func (c *ClaudeCLIClient) defaultGetVersion(ctx context.Context, path string) (string, error) {
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// parseCLIVersion parses output such as "1.0.86 (Claude Code)".
func parseCLIVersion(raw string) (*semver.Version, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty version output")
	}
	return semver.NewVersion(strings.TrimPrefix(fields[0], "v"))
}

func (c *ClaudeCLIClient) args(req *relaytypes.CompletionRequest, stream bool) []string {
	model := req.Model
	if model == "" {
		model = DefaultClaudeCLIModel
	}
	args := []string{"-p", "--model", model}
	if stream {
		return append(args, "--output-format", "stream-json", "--verbose", "--include-partial-messages")
	}
	return append(args, "--output-format", "json")
}

func (c *ClaudeCLIClient) ensurePath(ctx context.Context) error {
	if c.path != "" {
		return nil
	}
	return c.CheckInstalled(ctx)
}

// SendCompletion runs the CLI once and returns its final result text.
func (c *ClaudeCLIClient) SendCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (string, error) {
	if err := c.ensurePath(ctx); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, c.path, c.args(req, false)...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("Running claude CLI", "args", cmd.Args[1:])
	runErr := cmd.Run()

	result, ok := findResult(stdout.Bytes())
	if ok {
		if result.Get("is_error").Bool() {
			return "", fmt.Errorf("claude CLI failed: %s", resultMessage(result))
		}
		if runErr == nil {
			return result.Get("result").String(), nil
		}
	}

	if runErr != nil {
		return "", cliFailure(runErr, stderr.String())
	}
	return "", fmt.Errorf("claude CLI failed: no result in output")
}

// StreamCompletion runs the CLI in stream-json mode and forwards text deltas as they arrive.
func (c *ClaudeCLIClient) StreamCompletion(ctx context.Context, req *relaytypes.CompletionRequest) (<-chan relaytypes.StreamChunk, error) {
	if err := c.ensurePath(ctx); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.path, c.args(req, true)...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	c.logger.Debug("Starting claude CLI", "args", cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return nil, cliFailure(err, "")
	}

	ch := make(chan relaytypes.StreamChunk)
	go func() {
		defer close(ch)

		streamErr := c.consumeStreamJSON(ctx, stdout, ch)
		// Drain what is left so Wait does not block on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
		waitErr := cmd.Wait()

		switch {
		case ctx.Err() != nil:
			return
		case streamErr != nil:
			emit(ctx, ch, relaytypes.StreamChunk{Done: true, Error: streamErr})
		case waitErr != nil:
			emit(ctx, ch, relaytypes.StreamChunk{Done: true, Error: cliFailure(waitErr, stderr.String())})
		default:
			emit(ctx, ch, relaytypes.StreamChunk{Done: true})
		}
	}()

	return ch, nil
}

// consumeStreamJSON reads stream-json lines and emits text deltas.
// Deltas from every assistant turn are forwarded, including text written before
// a tool call, whereas SendCompletion returns only the final result.
// When the CLI reports a final result without having streamed any delta,
// the result text is emitted as a single fragment.
func (c *ClaudeCLIClient) consumeStreamJSON(ctx context.Context, r io.Reader, ch chan<- relaytypes.StreamChunk) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	emitted := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			c.logger.Debug("Skipping non-JSON output", "line", string(line))
			continue
		}

		event := gjson.ParseBytes(line)
		switch event.Get("type").String() {
		case "stream_event":
			if event.Get("event.type").String() != "content_block_delta" ||
				event.Get("event.delta.type").String() != "text_delta" {
				continue
			}
			text := event.Get("event.delta.text").String()
			if text == "" {
				continue
			}
			if !emit(ctx, ch, relaytypes.StreamChunk{Content: text}) {
				return ctx.Err()
			}
			emitted = true

		case "result":
			if event.Get("is_error").Bool() {
				return fmt.Errorf("claude CLI failed: %s", resultMessage(event))
			}
			if text := event.Get("result").String(); !emitted && text != "" {
				if !emit(ctx, ch, relaytypes.StreamChunk{Content: text}) {
					return ctx.Err()
				}
			}
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read claude CLI output: %w", err)
	}
	return nil
}

// findResult locates the result object in json output, which is either a
// single object or, with --verbose, an array of events.
func findResult(out []byte) (gjson.Result, bool) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return gjson.Result{}, false
	}

	parsed := gjson.ParseBytes(trimmed)
	if parsed.IsArray() {
		result := parsed.Get(`#(type=="result")`)
		return result, result.Exists()
	}
	if parsed.Get("type").String() == "result" {
		return parsed, true
	}
	return gjson.Result{}, false
}

// resultMessage returns the description carried by an error result.
func resultMessage(result gjson.Result) string {
	if msg := result.Get("result").String(); msg != "" {
		return msg
	}
	if subtype := result.Get("subtype").String(); subtype != "" {
		return subtype
	}
	return "unknown error"
}

// cliFailure describes a failed CLI process, preferring its own stderr text.
func cliFailure(err error, stderr string) error {
	var exitErr *exec.ExitError
	msg := strings.TrimSpace(stderr)
	if errors.As(err, &exitErr) && msg != "" {
		return fmt.Errorf("claude CLI failed: %s", msg)
	}
	return fmt.Errorf("claude CLI failed: %w", err)
}
