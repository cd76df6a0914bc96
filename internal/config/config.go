// Package config loads promptrelay settings and provider credentials.
//
// Priority (highest to lowest): process environment > local .env >
// config-directory .env > config.yaml > defaults. Credentials are read once,
// when Load runs, and are never logged.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"promptrelay/internal/logger"
)

// Configuration keys understood by viper.
const (
	KeyProvider      = "provider"
	KeyMaxTokens     = "max_tokens"
	KeyBaseURL       = "base_url"
	KeyCLICommand    = "cli.command"
	KeyCLIMinVersion = "cli.min_version"
	KeyLogLevel      = "log.level"
	KeyLogFile       = "log.file"
)

// Defaults applied when nothing else sets a key.
const (
	DefaultProvider      = "anthropic"
	DefaultMaxTokens     = 4096
	DefaultCLICommand    = "claude"
	DefaultCLIMinVersion = ">= 1.0.0"

	// MaxMaxTokens is the largest max_tokens every backend can represent.
	MaxMaxTokens = math.MaxInt32
)

// credentialEnvVars lists, per provider, the variables searched for its credential.
var credentialEnvVars = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

// Config is the resolved configuration for one invocation.
type Config struct {
	Provider      string
	MaxTokens     int64
	BaseURL       string
	CLICommand    string
	CLIMinVersion string
	LogLevel      string
	LogFile       string

	// ConfigEnvLoaded and LocalEnvLoaded report which .env files were found.
	ConfigEnvLoaded bool
	LocalEnvLoaded  bool

	dotenv map[string]string
}

// Loader reads configuration from a config directory, a working directory and the environment.
type Loader struct {
	ConfigDir string
	WorkDir   string
	Viper     *viper.Viper
}

// NewLoader returns a loader for the default config directory
// ($XDG_CONFIG_HOME/promptrelay or ~/.config/promptrelay) and the current directory.
func NewLoader(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	l := &Loader{Viper: v}
	if dir, err := os.UserConfigDir(); err == nil {
		l.ConfigDir = filepath.Join(dir, "promptrelay")
	}
	if wd, err := os.Getwd(); err == nil {
		l.WorkDir = wd
	}
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{dotenv: make(map[string]string)}

	// Lowest priority first, later files overwrite earlier ones.
	if l.ConfigDir != "" {
		loaded, err := loadDotEnvFile(filepath.Join(l.ConfigDir, ".env"), cfg.dotenv)
		if err != nil {
			return nil, err
		}
		cfg.ConfigEnvLoaded = loaded
	}
	if l.WorkDir != "" {
		loaded, err := loadDotEnvFile(filepath.Join(l.WorkDir, ".env"), cfg.dotenv)
		if err != nil {
			return nil, err
		}
		cfg.LocalEnvLoaded = loaded
	}

	v := l.Viper
	v.SetDefault(KeyProvider, DefaultProvider)
	v.SetDefault(KeyMaxTokens, DefaultMaxTokens)
	v.SetDefault(KeyCLICommand, DefaultCLICommand)
	v.SetDefault(KeyCLIMinVersion, DefaultCLIMinVersion)

	v.SetEnvPrefix("PROMPTRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.ConfigDir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(l.ConfigDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			logger.Debug("Config file loaded", "path", v.ConfigFileUsed())
		}
	}

	// PROMPTRELAY_* keys may also come from .env files. They are merged into the
	// config layer, above config.yaml and below flags and the process environment.
	for _, key := range []string{KeyProvider, KeyMaxTokens, KeyBaseURL, KeyCLICommand, KeyCLIMinVersion, KeyLogLevel, KeyLogFile} {
		envKey := "PROMPTRELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		value, ok := cfg.dotenv[envKey]
		if !ok {
			continue
		}
		if err := v.MergeConfigMap(nestedKey(key, value)); err != nil {
			return nil, fmt.Errorf("failed to apply %s from .env: %w", envKey, err)
		}
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(v.GetString(KeyProvider)))
	cfg.MaxTokens = v.GetInt64(KeyMaxTokens)
	cfg.BaseURL = v.GetString(KeyBaseURL)
	cfg.CLICommand = v.GetString(KeyCLICommand)
	cfg.CLIMinVersion = v.GetString(KeyCLIMinVersion)
	cfg.LogLevel = v.GetString(KeyLogLevel)
	cfg.LogFile = v.GetString(KeyLogFile)

	if cfg.MaxTokens <= 0 || cfg.MaxTokens > MaxMaxTokens {
		return nil, fmt.Errorf("%s must be between 1 and %d, got %d", KeyMaxTokens, MaxMaxTokens, cfg.MaxTokens)
	}

	logger.Debug("Configuration loaded",
		"provider", cfg.Provider,
		"config_env", cfg.ConfigEnvLoaded,
		"local_env", cfg.LocalEnvLoaded)
	return cfg, nil
}

// Credential returns the credential for provider and the variable it was read from.
// When no credential is set, value is empty and envVar names the primary variable.
func (c *Config) Credential(provider string) (value string, envVar string) {
	names, ok := credentialEnvVars[provider]
	if !ok || len(names) == 0 {
		return "", ""
	}
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v, name
		}
	}
	for _, name := range names {
		if v := c.dotenv[name]; v != "" {
			return v, name
		}
	}
	return "", names[0]
}

// nestedKey turns a dotted key such as "cli.command" into the nested map viper merges.
func nestedKey(key string, value any) map[string]any {
	parts := strings.Split(key, ".")
	m := map[string]any{parts[len(parts)-1]: value}
	for i := len(parts) - 2; i >= 0; i-- {
		m = map[string]any{parts[i]: m}
	}
	return m
}

// loadDotEnvFile merges a .env file into values. A missing file is not an error.
func loadDotEnvFile(path string, values map[string]string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read .env file %s: %w", path, err)
	}

	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return false, fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}

	for key, value := range envMap {
		values[key] = value
	}
	return true, nil
}
