// Package logger provides centralized logging functionality for promptrelay.
// Diagnostics go to stderr (or a log file) and stay below the default level on
// the success path, so the plugin only ever sees the relayed text on stdout.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Logger is the global logger instance used throughout promptrelay.
var Logger *log.Logger

// output is where Logger and component loggers write.
var output io.Writer = os.Stderr

// logFile is the file opened by Configure, if any.
var logFile *os.File

func init() {
	Logger = log.New(output)
	Logger.SetTimeFormat("")
	Logger.SetLevel(log.WarnLevel)
}

// Configure sets up the logger based on CLI flags and environment variables.
// CLI flags take precedence over PROMPTRELAY_LOG_LEVEL.
func Configure(logLevel string, path string) error {
	level := logLevel
	if level == "" {
		level = strings.ToLower(os.Getenv("PROMPTRELAY_LOG_LEVEL"))
	}

	var out io.Writer = os.Stderr
	var file *os.File
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		file, out = f, f
	}

	if err := Close(); err != nil {
		Debug("Failed to close previous log file", "error", err)
	}
	logFile = file
	SetOutput(out)
	Logger.SetLevel(parseLogLevel(level))
	return nil
}

// Close releases the log file opened by Configure and sends output back to stderr.
func Close() error {
	if logFile == nil {
		return nil
	}
	file := logFile
	logFile = nil
	SetOutput(os.Stderr)
	return file.Close()
}

// SetOutput replaces the destination of the global logger, keeping its level.
func SetOutput(w io.Writer) {
	level := log.WarnLevel
	if Logger != nil {
		level = Logger.GetLevel()
	}
	output = w
	Logger = log.New(w)
	Logger.SetTimeFormat("")
	Logger.SetLevel(level)
}

// parseLogLevel converts string to log level
func parseLogLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.WarnLevel
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// RelayStep logs a relay state transition for debugging.
func RelayStep(requestID string, step string, details ...interface{}) {
	Debug("Relay step", "request_id", requestID, "step", step, "details", details)
}

// NewStyledLogger creates a new logger with custom styles and prefix for component-specific logging.
// The prefix names the component (e.g., "ClaudeCLI", "Relay").
func NewStyledLogger(prefix string) *log.Logger {
	styles := log.DefaultStyles()

	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("33")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("196")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("240")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("214")).
		Foreground(lipgloss.Color("15"))

	styles.Keys["request_id"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	styles.Keys["provider"] = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	styles.Keys["model"] = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	componentLogger := log.NewWithOptions(output, log.Options{
		Prefix: prefix + " ",
	})
	componentLogger.SetStyles(styles)
	componentLogger.SetLevel(Logger.GetLevel())

	return componentLogger
}
