// Package cli wires relayctl's cobra command tree: a PersistentPreRunE
// pushes flag values into cfg, and subcommands take (cfg, logger) and
// build a relay.Client from them.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/relayhttp/relay/internal/config"
	"github.com/relayhttp/relay/internal/logging"
)

// Execute runs relayctl's root command with ctx, cfg, and logger.
func Execute(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	root := newRootCommand(cfg, logger)
	root.SetContext(ctx)
	return root.Execute()
}

func newRootCommand(cfg *config.Config, logger logging.Logger) *cobra.Command {
	var verbose, noColor, trustEnv, insecure bool
	var outputFormat, proxyURL, baseURL string
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Command-line client for the relay HTTP library",
		Long: `relayctl drives relay.Client from the command line: one-shot
requests, redirect following, and auth probing (Basic and Digest)
against any origin.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("verbose") {
				cfg.CLI.Verbose = verbose
				if verbose {
					cfg.LogLevel = "debug"
				}
			}
			if cmd.Flags().Changed("no-color") {
				cfg.CLI.NoColor = noColor
			}
			if cmd.Flags().Changed("output") {
				cfg.CLI.OutputFormat = outputFormat
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Client.TimeoutSeconds = timeoutSeconds
			}
			if cmd.Flags().Changed("trust-env") {
				cfg.Client.TrustEnv = trustEnv
			}
			if cmd.Flags().Changed("proxy") {
				cfg.Client.ProxyURL = proxyURL
			}
			if cmd.Flags().Changed("base-url") {
				cfg.Client.BaseURL = baseURL
			}
			if cmd.Flags().Changed("insecure") {
				cfg.Client.InsecureTLS = insecure
			}
			if os.Getenv("NO_COLOR") != "" {
				cfg.CLI.NoColor = true
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", cfg.CLI.Verbose, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", cfg.CLI.NoColor, "Disable colored output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", cfg.CLI.OutputFormat, "Output format (text, json)")
	cmd.PersistentFlags().IntVar(&timeoutSeconds, "timeout", cfg.Client.TimeoutSeconds, "Per-operation timeout in seconds")
	cmd.PersistentFlags().BoolVar(&trustEnv, "trust-env", cfg.Client.TrustEnv, "Honor proxy env vars and .netrc")
	cmd.PersistentFlags().StringVar(&proxyURL, "proxy", cfg.Client.ProxyURL, "Proxy URL for every origin")
	cmd.PersistentFlags().StringVar(&baseURL, "base-url", cfg.Client.BaseURL, "Base URL relative requests resolve against")
	cmd.PersistentFlags().BoolVar(&insecure, "insecure", cfg.Client.InsecureTLS, "Skip TLS certificate verification")

	cmd.AddCommand(newGetCommand(cfg, logger))
	cmd.AddCommand(newPostCommand(cfg, logger))
	cmd.AddCommand(newDigestProbeCommand(cfg, logger))
	cmd.AddCommand(newConfigCommand(cfg, logger))

	return cmd
}
