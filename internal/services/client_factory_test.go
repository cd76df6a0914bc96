package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptrelay/internal/config"
	"promptrelay/pkg/relaytypes"
)

func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for _, name := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY", "PROMPTRELAY_CLI_COMMAND"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	loader := &config.Loader{ConfigDir: t.TempDir(), WorkDir: t.TempDir(), Viper: viper.New()}
	cfg, err := loader.Load()
	require.NoError(t, err)
	return cfg
}

func TestClientFactoryService_Providers(t *testing.T) {
	factory := NewClientFactoryService(loadTestConfig(t, nil))
	assert.Equal(t, []string{"anthropic", "claude-cli", "gemini", "openai"}, factory.Providers())
}

func TestClientFactoryService_GetClient(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"OPENAI_API_KEY":    "sk-test",
		"GEMINI_API_KEY":    "gemini-test",
	})
	factory := NewClientFactoryService(cfg)

	for _, provider := range []string{"anthropic", "openai", "gemini"} {
		t.Run(provider, func(t *testing.T) {
			client, err := factory.GetClient(provider)
			require.NoError(t, err)
			assert.Equal(t, provider, client.GetProviderName())
			assert.True(t, client.IsConfigured())
		})
	}
}

func TestClientFactoryService_MissingCredential(t *testing.T) {
	factory := NewClientFactoryService(loadTestConfig(t, nil))

	tests := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GOOGLE_API_KEY",
	}
	for provider, envVar := range tests {
		t.Run(provider, func(t *testing.T) {
			client, err := factory.GetClient(provider)
			assert.Nil(t, client)

			var credErr *relaytypes.CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, envVar, credErr.EnvVar)
			assert.Equal(t, envVar+" environment variable not set", err.Error())
		})
	}
}

func TestClientFactoryService_UnknownProvider(t *testing.T) {
	factory := NewClientFactoryService(loadTestConfig(t, nil))

	_, err := factory.GetClient("")
	assert.Error(t, err)

	_, err = factory.GetClient("mistral")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported provider "mistral"`)
}

func TestClientFactoryService_ClaudeCLI(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		cfg := loadTestConfig(t, map[string]string{
			"PROMPTRELAY_CLI_COMMAND": filepath.Join(t.TempDir(), "no-such-claude"),
		})
		factory := NewClientFactoryService(cfg)

		_, err := factory.GetClient(ProviderClaudeCLI)

		var depErr *relaytypes.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, "claude CLI not found - please install it first: npm install -g @anthropic-ai/claude-code", err.Error())
	})

	t.Run("installed", func(t *testing.T) {
		fake := newFakeClaude(t)
		cfg := loadTestConfig(t, map[string]string{"PROMPTRELAY_CLI_COMMAND": fake.path})
		factory := NewClientFactoryService(cfg)

		client, err := factory.GetClient(ProviderClaudeCLI)
		require.NoError(t, err)
		assert.Equal(t, ProviderClaudeCLI, client.GetProviderName())
		assert.True(t, client.IsConfigured())
	})
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5-20250929", DefaultModel("anthropic"))
	assert.Equal(t, DefaultOpenAIModel, DefaultModel("openai"))
	assert.Equal(t, DefaultGeminiModel, DefaultModel("gemini"))
	assert.Equal(t, DefaultClaudeCLIModel, DefaultModel(ProviderClaudeCLI))
	assert.Empty(t, DefaultModel("unknown"))
}
