// Package main provides the promptrelay CLI entry point.
// promptrelay is an external command provider for editor plugins: it reads a
// prompt from stdin, relays it to a language model and writes the answer to stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"promptrelay/internal/config"
	"promptrelay/internal/logger"
	"promptrelay/internal/relay"
	"promptrelay/internal/services"
	"promptrelay/internal/version"
)

// relayFlags are the only flags that change relay behavior.
type relayFlags struct {
	stream bool
	model  string
}

// providerSelector picks the backend for a subcommand once config is loaded.
type providerSelector func(cfg *config.Config) string

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit status.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	defer func() { _ = logger.Close() }()

	rootCmd := newRootCmd(stdin)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stderr, relay.FormatError(err))
		return 1
	}
	return 0
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	v := viper.New()
	apiFlags := &relayFlags{}

	// rootCmd relays to the configured API provider when called without a subcommand
	rootCmd := &cobra.Command{
		Use:   "promptrelay",
		Short: "Relay a prompt from stdin to a language model",
		Long: `promptrelay reads a prompt from stdin, sends it to a language model and writes
the response to stdout, either at once or streamed, followed by one newline.
It is meant to be used as an external command provider by editor plugins.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          relayRunE(v, apiFlags, stdin, func(cfg *config.Config) string { return cfg.Provider }),
	}
	addRelayFlags(rootCmd, apiFlags)

	rootCmd.PersistentFlags().String("log-level", "", "Set log level (debug|info|warn|error) [default: warn]")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to file instead of stderr")
	_ = v.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag(config.KeyLogFile, rootCmd.PersistentFlags().Lookup("log-file"))

	// apiCmd is the explicit form of the default behavior
	apiSubFlags := &relayFlags{}
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Relay to a hosted API (anthropic, openai or gemini)",
		Long: `Relay the prompt to the hosted API selected by the "provider" setting
(PROMPTRELAY_PROVIDER or config.yaml). The credential is read from
ANTHROPIC_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: relayRunE(v, apiSubFlags, stdin, func(cfg *config.Config) string { return cfg.Provider }),
	}
	addRelayFlags(apiCmd, apiSubFlags)

	cliFlags := &relayFlags{}
	cliCmd := &cobra.Command{
		Use:   "cli",
		Short: "Relay to the Claude Code CLI",
		Long: `Relay the prompt to the claude command-line tool in print mode.
The CLI handles its own authentication; set cli.command to use a different binary.`,
		Args: cobra.NoArgs,
		RunE: relayRunE(v, cliFlags, stdin, func(*config.Config) string { return services.ProviderClaudeCLI }),
	}
	addRelayFlags(cliCmd, cliFlags)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
		},
	}

	rootCmd.AddCommand(apiCmd, cliCmd, versionCmd)
	return rootCmd
}

func addRelayFlags(cmd *cobra.Command, flags *relayFlags) {
	cmd.Flags().BoolVar(&flags.stream, "stream", false, "Stream the response as it is generated")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model to use [default depends on the provider]")
}

func relayRunE(v *viper.Viper, flags *relayFlags, stdin io.Reader, selectProvider providerSelector) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewLoader(v).Load()
		if err != nil {
			return err
		}
		if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}

		provider := selectProvider(cfg)
		model := flags.model
		if model == "" {
			model = services.DefaultModel(provider)
		}

		logger.Debug("Starting promptrelay",
			"version", version.Version,
			"dev_build", version.IsDevelopment(),
			"provider", provider,
			"model", model,
			"stream", flags.stream)

		r := relay.New(services.NewClientFactoryService(cfg), provider)
		return r.Run(cmd.Context(), stdin, cmd.OutOrStdout(), relay.Options{
			Stream:    flags.stream,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
		})
	}
}
