package services

import (
	"context"
	"fmt"
	"sort"

	"promptrelay/internal/config"
	"promptrelay/internal/logger"
	"promptrelay/pkg/relaytypes"
)

// ProviderClaudeCLI names the external CLI backend.
const ProviderClaudeCLI = "claude-cli"

// ClientFactoryService implements the ClientFactory interface.
// It resolves a provider name to a client, checking the credential or the
// external dependency first so that nothing is sent when either is missing.
type ClientFactoryService struct {
	cfg *config.Config

	// constructors lets tests swap in fake backends.
	constructors map[string]func(cfg *config.Config, apiKey string) relaytypes.LLMClient
}

// NewClientFactoryService creates a factory backed by cfg.
func NewClientFactoryService(cfg *config.Config) *ClientFactoryService {
	return &ClientFactoryService{
		cfg: cfg,
		constructors: map[string]func(cfg *config.Config, apiKey string) relaytypes.LLMClient{
			"anthropic": func(cfg *config.Config, apiKey string) relaytypes.LLMClient {
				return NewAnthropicClient(apiKey, cfg.BaseURL)
			},
			"openai": func(cfg *config.Config, apiKey string) relaytypes.LLMClient {
				return NewOpenAIClient(apiKey, cfg.BaseURL)
			},
			"gemini": func(cfg *config.Config, apiKey string) relaytypes.LLMClient {
				return NewGeminiClient(apiKey, cfg.BaseURL)
			},
			ProviderClaudeCLI: func(cfg *config.Config, _ string) relaytypes.LLMClient {
				return NewClaudeCLIClient(cfg.CLICommand, cfg.CLIMinVersion)
			},
		},
	}
}

// Providers returns the supported provider names in sorted order.
func (f *ClientFactoryService) Providers() []string {
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetClient returns a client for provider.
// API providers need a credential; the CLI provider needs the CLI on PATH.
func (f *ClientFactoryService) GetClient(provider string) (relaytypes.LLMClient, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}

	constructor, ok := f.constructors[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q (supported: %v)", provider, f.Providers())
	}

	if provider == ProviderClaudeCLI {
		client := constructor(f.cfg, "")
		if checker, ok := client.(interface{ CheckInstalled(context.Context) error }); ok {
			if err := checker.CheckInstalled(context.Background()); err != nil {
				return nil, err
			}
		}
		logger.Debug("Created provider client", "provider", provider)
		return client, nil
	}

	apiKey, envVar := f.cfg.Credential(provider)
	if apiKey == "" {
		return nil, &relaytypes.CredentialError{Provider: provider, EnvVar: envVar}
	}

	logger.Debug("Created provider client", "provider", provider, "credential_source", envVar)
	return constructor(f.cfg, apiKey), nil
}

// DefaultModel returns the model used for provider when no override is given.
func DefaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return DefaultAnthropicModel
	case "openai":
		return DefaultOpenAIModel
	case "gemini":
		return DefaultGeminiModel
	case ProviderClaudeCLI:
		return DefaultClaudeCLIModel
	default:
		return ""
	}
}
